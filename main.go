package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	flag "github.com/spf13/pflag"

	"parley/internal/avatar"
	"parley/internal/chats"
	"parley/internal/config"
	"parley/internal/directory"
	"parley/internal/session"
	"parley/internal/state"
	"parley/internal/transport"
	"parley/internal/ui"
)

func run(ctx context.Context) error {
	baseURL := flag.String("base-url", "", "Backend base URL (overrides PARLEY_BASE_URL)")
	stateDir := flag.String("state-dir", "", "Session state directory (overrides PARLEY_STATE_DIR)")
	debug := flag.Bool("debug", false, "Write debug logs to parley.log in the state directory")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *stateDir != "" {
		cfg.StateDir = *stateDir
		cfg.AvatarDir = filepath.Join(cfg.StateDir, "avatars")
	}

	if err := os.MkdirAll(cfg.StateDir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// The TUI owns the terminal, so logs go to a file or nowhere.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	if *debug {
		logFile, err := os.OpenFile(filepath.Join(cfg.StateDir, "parley.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return err
		}
		defer func() { _ = logFile.Close() }()
		logger = slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	sessionState, err := state.Open(cfg.StateFile(), []byte(cfg.StateSecret))
	if err != nil {
		return err
	}
	defer func() { _ = sessionState.Close() }()

	// The client reads the bearer token through the session store; the
	// store is constructed right after, before any request fires.
	var sessionStore *session.Store
	client, err := transport.New(transport.Config{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.HTTPTimeout,
		Token:   func() string { return sessionStore.Token() },
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	sessionStore = session.New(client, sessionState, logger)

	chatStore := chats.New(client, sessionStore, logger)
	directoryCache := directory.NewCache(client, sessionStore, logger)
	avatarCache, err := avatar.NewCache(cfg.AvatarDir, client.HTTPClient(), cfg.BaseURL)
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, sessionStore, chatStore, directoryCache).WithAvatars(avatarCache)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return context.Canceled
	}
	return err
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
