package content

import (
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// The parser configuration never changes and a goldmark parser is safe
// to share; per-call state lives in the reader.
var (
	markdownOnce     sync.Once
	markdownInstance goldmark.Markdown
)

func markdownParser() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.Strikethrough),
		)
	})
	return markdownInstance
}

var (
	boldStyle   = lipgloss.NewStyle().Bold(true)
	italicStyle = lipgloss.NewStyle().Italic(true)
	strikeStyle = lipgloss.NewStyle().Strikethrough(true)
	codeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// RenderTerminal renders message markdown as styled terminal text.
// Inline emphasis, code spans and fenced code blocks are styled; soft
// line breaks inside a paragraph become spaces so hard-wrapped source
// reflows at any terminal width. Anything structurally richer falls
// back to its literal text.
func RenderTerminal(input string) string {
	if input == "" {
		return ""
	}
	source := []byte(input)
	document := markdownParser().Parser().Parse(text.NewReader(source))

	var out strings.Builder
	for block := document.FirstChild(); block != nil; block = block.NextSibling() {
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		renderBlock(&out, block, source)
	}
	return strings.TrimRight(out.String(), "\n")
}

func renderBlock(out *strings.Builder, node ast.Node, source []byte) {
	switch n := node.(type) {
	case *ast.Paragraph, *ast.TextBlock, *ast.Heading:
		out.WriteString(renderInline(node, source))
		out.WriteString("\n")
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			segment := lines.At(i)
			line := strings.TrimRight(string(segment.Value(source)), "\n")
			out.WriteString(codeStyle.Render(line))
			out.WriteString("\n")
		}
	case *ast.List:
		for item := n.FirstChild(); item != nil; item = item.NextSibling() {
			var itemText strings.Builder
			for child := item.FirstChild(); child != nil; child = child.NextSibling() {
				renderBlock(&itemText, child, source)
			}
			out.WriteString("- " + strings.TrimRight(itemText.String(), "\n") + "\n")
		}
	case *ast.Blockquote:
		for child := n.FirstChild(); child != nil; child = child.NextSibling() {
			var quoted strings.Builder
			renderBlock(&quoted, child, source)
			for _, line := range strings.Split(strings.TrimRight(quoted.String(), "\n"), "\n") {
				out.WriteString("> " + line + "\n")
			}
		}
	default:
		out.WriteString(renderInline(node, source))
		out.WriteString("\n")
	}
}

func renderInline(node ast.Node, source []byte) string {
	var out strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Text:
			out.Write(n.Segment.Value(source))
			if n.SoftLineBreak() {
				out.WriteString(" ")
			}
			if n.HardLineBreak() {
				out.WriteString("\n")
			}
		case *ast.Emphasis:
			inner := renderInline(n, source)
			if n.Level >= 2 {
				out.WriteString(boldStyle.Render(inner))
			} else {
				out.WriteString(italicStyle.Render(inner))
			}
		case *ast.CodeSpan:
			out.WriteString(codeStyle.Render(renderInline(n, source)))
		case *ast.Link:
			out.WriteString(renderInline(n, source))
			out.WriteString(" (" + string(n.Destination) + ")")
		case *ast.AutoLink:
			out.Write(n.URL(source))
		case *extast.Strikethrough:
			out.WriteString(strikeStyle.Render(renderInline(n, source)))
		default:
			out.WriteString(renderInline(child, source))
		}
	}
	return out.String()
}
