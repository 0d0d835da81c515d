package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"

	"fireshot/pkg/config"
	"fireshot/pkg/conversation"
	"fireshot/pkg/firefly"
	"fireshot/pkg/match"
	"fireshot/pkg/ocr"
	"fireshot/pkg/store"

	"github.com/google/subcommands"
)

var configPath string

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&serveCmd{}, "")
	commander.Register(&watchCmd{}, "")
	commander.Register(&migrateCmd{}, "")
	commander.Register(&tokenCmd{}, "")
	commander.Register(&ocrCmd{}, "debug")

	flag.StringVar(&configPath, "config", "", "path to config.yml (default ./config.yml when present)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}

// loadConfig reads the configuration and builds the process logger.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	log := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(log)
	return cfg, log, nil
}

// newExtractor builds the pooled tesseract extractor.
func newExtractor(cfg config.ScreenshotsConfig, log *slog.Logger) *ocr.Pool {
	ext := ocr.NewExtractor(
		ocr.WithLanguages(cfg.Languages...),
		ocr.WithScale(cfg.Scale),
		ocr.WithSymbols(cfg.Symbols),
		ocr.WithLogger(log),
	)
	return ocr.NewPool(ext, cfg.Workers)
}

// newEngine wires the conversation engine to its collaborators.
func newEngine(cfg config.Config, st store.Store, log *slog.Logger, onOutcome func(conversation.Ended)) (*conversation.Engine, error) {
	if err := cfg.Firefly.Ready(); err != nil {
		return nil, err
	}
	hasher, err := match.NewHasher(cfg.Screenshots.Hash)
	if err != nil {
		return nil, err
	}
	log.Info("screenshot matching",
		slog.String("hash", string(hasher.Algorithm())),
		slog.Int("threshold", cfg.Screenshots.Threshold))
	ff := firefly.New(cfg.Firefly.URL, cfg.Firefly.AccessToken, cfg.Firefly.Timeout,
		firefly.WithDescription(cfg.Bot.Balance.Description))
	return conversation.New(st, ff, ff, newExtractor(cfg.Screenshots, log), hasher, conversation.Options{
		Threshold:   cfg.Screenshots.Threshold,
		Timeout:     cfg.Bot.Timeout,
		Allowed:     cfg.Bot.Allowed,
		AccountType: cfg.Bot.AccountType,
		Logger:      log,
		OnOutcome:   onOutcome,
	}), nil
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}
