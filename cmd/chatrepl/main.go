// Command chatrepl is a terminal chat client that drives the conversation
// core directly, without the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ChatPane/models"
	"ChatPane/pkg/cache"
	"ChatPane/pkg/chat"
	"ChatPane/pkg/config"
	"ChatPane/pkg/identity"
	"ChatPane/pkg/kv"
	"ChatPane/pkg/services"
	"ChatPane/pkg/theme"

	"github.com/fatih/color"
	"github.com/peterh/liner"
)

func main() {
	if err := run(); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// the terminal belongs to the prompt; only warnings go to stderr
	if !strings.EqualFold(cfg.LogLevel, "debug") {
		cfg.LogLevel = "warn"
	}
	logger := cfg.NewLogger(os.Stderr)

	store, err := kv.Open(cfg.StorageDriver, cfg.StorageDSN)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	transcriptCache := cache.New(cfg.TranscriptCacheMaxItems, time.Minute)
	defer transcriptCache.Close()
	gemini := services.NewGeminiService(cfg, cache.NewTranscripts(transcriptCache, cfg.TranscriptCacheTTL()), logger)

	r := newREPL(os.Stdout,
		chat.NewRegistry(store, chat.PickCompleter(gemini, logger), gemini, logger),
		identity.NewProvider(store),
		theme.New(store, models.Theme(cfg.DefaultTheme)),
	)

	ctx := context.Background()
	if err := r.login(ctx); err != nil {
		return err
	}
	fmt.Println("Type /help for commands.")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	historyFile := filepath.Join(os.TempDir(), "chatrepl_history")
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.OpenFile(historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	for {
		input, err := line.Prompt(r.prompt())
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}
		if r.handle(ctx, input) {
			return nil
		}
	}
}
