package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"<b>bold</b>", "bold"},
		{"<script>alert(1)</script>after", "after"},
		{"a &amp; b", "a & b"},
		{"<img src=x onerror=alert(1)>ok", "ok"},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Sanitize(tc.in), "input %q", tc.in)
	}
}

func TestValidateUsername(t *testing.T) {
	for _, valid := range []string{"alice", "bob.smith", "carol-x", "d_e", "user123"} {
		require.NoError(t, ValidateUsername(valid), valid)
	}
	for _, invalid := range []string{"", "with space", "semi;colon", "at@sign", "слово"} {
		require.Error(t, ValidateUsername(invalid), invalid)
	}
}

func TestRenderTerminal(t *testing.T) {
	out := RenderTerminal("# Title\n\nSome **bold** and `inline` text.")
	require.Contains(t, out, "Title")
	require.Contains(t, out, "bold")
	require.Contains(t, out, "inline")
}

func TestRenderTerminalCodeBlock(t *testing.T) {
	out := RenderTerminal("```\nfmt.Println(\"hi\")\n```")
	require.Contains(t, out, `fmt.Println("hi")`)
}

func TestRenderTerminalList(t *testing.T) {
	out := RenderTerminal("- one\n- two")
	require.Contains(t, out, "one")
	require.Contains(t, out, "two")
	require.Equal(t, 2, strings.Count(out, "- "))
}

func TestRenderTerminalPlain(t *testing.T) {
	require.Contains(t, RenderTerminal("just words"), "just words")
}
