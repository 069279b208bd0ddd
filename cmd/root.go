package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"document-chat/internal/chat"
	"document-chat/internal/config"
	"document-chat/internal/embedding"
	"document-chat/internal/llmservice"
	"document-chat/internal/vectorindex"
)

type options struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "docchat",
		Short:         "Chat with your documents",
		Long:          "Index PDF, office and text documents and ask questions about them with a language model of your choice.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			level := cfg.LogLevel
			if cmd.Flags().Changed("log-level") {
				level = opts.logLevel
			}
			if err := setupLogging(level, cmd.ErrOrStderr()); err != nil {
				return err
			}
			log.Debug().Str("path", opts.configPath).Msg("Loaded config")
			opts.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", configFilePath, "path to the YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newIngestCmd(opts),
		newAskCmd(opts),
		newChatCmd(opts),
		newServeCmd(opts),
		newIndexCmd(opts),
	)
	return root
}

func setupLogging(level string, out io.Writer) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Caller().Logger()
	return nil
}

// newIndexer wires the configured embedder to the index stores
func newIndexer(cfg *config.Config) (*vectorindex.Indexer, error) {
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return vectorindex.NewIndexer(embedder, cfg.Index, cfg.Database), nil
}

func newService(ctx context.Context, cfg *config.Config) (*chat.Service, error) {
	indexer, err := newIndexer(cfg)
	if err != nil {
		return nil, err
	}
	router := llmservice.NewRouterFromConfig(ctx, cfg)
	if len(router.Models()) == 0 {
		return nil, fmt.Errorf("no model of the catalog has a usable provider, check the providers section and API keys")
	}
	svc, err := chat.NewService(cfg, indexer, router)
	if err != nil {
		router.Close()
		return nil, err
	}
	return svc, nil
}
