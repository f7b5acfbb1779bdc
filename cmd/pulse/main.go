// Command pulse is a terminal client for the analytics chat service.
//
// Usage:
//
//	PULSE_TOKEN=... pulse [flags]
//
// Flags:
//
//	-config string        Path to YAML config file (default: ~/.pulse/config.yaml)
//	-endpoint string      Service base URL (overrides config)
//	-conversation string  Conversation ID to resume
//	-store string         Persistence backend: json, sqlite (overrides config)
//	-upload string        Glob of dataset files to upload before starting
//	-token-file string    Path to a bearer token file (overrides config)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fwojciec/pulse"
	bt "github.com/fwojciec/pulse/bubbletea"
	"github.com/fwojciec/pulse/config"
	pulsejson "github.com/fwojciec/pulse/json"
	"github.com/fwojciec/pulse/orchestrator"
	"github.com/fwojciec/pulse/sqlite"
	"github.com/fwojciec/pulse/upload"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pulse: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse flags.
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		endpoint   = flag.String("endpoint", "", "Service base URL (overrides config)")
		convFlag   = flag.String("conversation", "", "Conversation ID to resume")
		storeFlag  = flag.String("store", "", "Persistence backend: json, sqlite (overrides config)")
		uploadGlob = flag.String("upload", "", "Glob of dataset files to upload before starting")
		tokenFile  = flag.String("token-file", "", "Path to a bearer token file (overrides config)")
		listConvs  = flag.Bool("list", false, "List saved conversation IDs and exit")
	)
	flag.Parse()

	// Handle OS signals for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if env := os.Getenv("PULSE_ENDPOINT"); env != "" {
		cfg.Service.Endpoint = env
	}
	if *endpoint != "" {
		cfg.Service.Endpoint = *endpoint
	}
	if *storeFlag != "" {
		cfg.Store.Backend = *storeFlag
	}
	if *tokenFile != "" {
		cfg.Service.TokenFile = *tokenFile
	}

	tokens := resolveTokens(cfg)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if *listConvs {
		return listConversations(ctx, store)
	}

	opener := orchestrator.New(tokens, orchestrator.WithBaseURL(cfg.Service.Endpoint))
	uploader := upload.New(tokens, upload.WithBaseURL(cfg.Service.Endpoint))
	usage := pulse.NewUsageCounter(cfg.Limits.DailyQuestions)

	// The UI consumes state snapshots from this channel; the buffer absorbs
	// bursts of status updates between frames.
	updates := make(chan pulse.Conversation, 256)

	chatOpts := []pulse.ChatOption{
		pulse.WithStore(store),
		pulse.WithUploader(uploader),
		pulse.WithUsage(usage),
		pulse.WithOnChange(func(conv pulse.Conversation) { updates <- conv }),
	}
	if cfg.Reveal.Enabled {
		chatOpts = append(chatOpts, pulse.WithReveal(pulse.RevealConfig{
			ChunkWords: cfg.Reveal.ChunkWords,
			Interval:   cfg.Reveal.Interval,
			ChartDelay: cfg.Reveal.ChartDelay,
		}))
	}

	chat := pulse.NewChat(opener, chatOpts...)
	defer chat.Close()

	convID := *convFlag
	if convID != "" {
		if _, err := chat.Resume(ctx, convID); err != nil {
			return fmt.Errorf("resume conversation %s: %w", convID, err)
		}
	} else {
		convID = chat.NewConversation()
	}

	if *uploadGlob != "" {
		if err := uploadDatasets(ctx, chat, convID, *uploadGlob); err != nil {
			return err
		}
	}

	model := bt.New(chat, convID, pulse.DefaultTheme(), updates,
		bt.WithUsageDisplay(usage))

	if err := bt.Run(ctx, model); err != nil {
		return fmt.Errorf("TUI: %w", err)
	}

	return nil
}

// loadConfig reads the config file at path, falling back to the default
// location. A missing default file is not an error.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return config.Default(), nil
	}
	defaultPath := filepath.Join(home, ".pulse", "config.yaml")
	cfg, err := config.Load(defaultPath)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

// resolveTokens picks the credential source: a token file when configured,
// otherwise the literal token from config or the PULSE_TOKEN env var.
func resolveTokens(cfg *config.Config) pulse.TokenSource {
	if cfg.Service.TokenFile != "" {
		return &fileTokenSource{path: cfg.Service.TokenFile}
	}
	if cfg.Service.Token != "" {
		return pulse.StaticToken(cfg.Service.Token)
	}
	return pulse.StaticToken(os.Getenv("PULSE_TOKEN"))
}

// listConversations prints saved conversation ids, one per line. Both store
// backends expose List beyond the pulse.Store interface.
func listConversations(ctx context.Context, store pulse.Store) error {
	lister, ok := store.(interface {
		List(ctx context.Context) ([]string, error)
	})
	if !ok {
		return errors.New("store does not support listing")
	}
	ids, err := lister.List(ctx)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (pulse.Store, func(), error) {
	switch cfg.Store.Backend {
	case "sqlite":
		s, err := sqlite.Open(ctx, filepath.Join(cfg.Store.Path, "pulse.db"))
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return pulsejson.NewStore(cfg.Store.Path), func() {}, nil
	}
}

// uploadDatasets expands the glob and uploads each match, binding the last
// returned dataset to the conversation.
func uploadDatasets(ctx context.Context, chat *pulse.Chat, convID, pattern string) error {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return fmt.Errorf("invalid upload glob %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("no files match %q", pattern)
	}
	for _, path := range matches {
		if err := uploadOne(ctx, chat, convID, path); err != nil {
			return fmt.Errorf("upload %s: %w", path, err)
		}
		fmt.Fprintf(os.Stderr, "Uploaded %s\n", path)
	}
	return nil
}

func uploadOne(ctx context.Context, chat *pulse.Chat, convID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	uf := pulse.UploadFile{
		Name:        filepath.Base(path),
		Size:        info.Size(),
		ContentType: upload.ContentTypeFor(path),
	}
	if err := upload.Validate(uf); err != nil {
		return err
	}
	_, err = chat.Upload(ctx, convID, uf, f)
	return err
}

// fileTokenSource re-reads the token file on every request so rotated
// credentials take effect without a restart.
type fileTokenSource struct {
	path string
}

func (s *fileTokenSource) Token(context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
