package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"document-chat/internal/chat"
	"document-chat/internal/chunker"
	"document-chat/internal/helper"
	"document-chat/internal/models"
	"document-chat/internal/parser"
)

func newIngestCmd(opts *options) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "ingest <path|glob>...",
		Short: "Add documents to the index",
		Long:  "Extracts, chunks and embeds the given files and adds them to the index as one batch. Globs may use **.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := helper.ExpandPaths(args)
			if err != nil {
				return err
			}
			if dryRun {
				return printChunks(opts, paths)
			}
			return ingest(cmd.Context(), opts, paths)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the chunks without embedding or storing them")
	return cmd
}

func ingest(ctx context.Context, opts *options, paths []string) error {
	svc, err := newService(ctx, opts.cfg)
	if err != nil {
		return err
	}
	defer svc.Close()
	sess, err := svc.NewSession(ctx)
	if err != nil {
		return err
	}

	bar := newProgressBar(len(paths), "extracting")
	var chunks []models.Chunk
	for _, p := range paths {
		fileChunks, err := prepareFile(svc, p)
		bar.Add(1)
		if err != nil {
			log.Warn().Err(err).Str("file", p).Msg("Skipping document")
			continue
		}
		chunks = append(chunks, fileChunks...)
	}
	bar.Finish()

	if len(chunks) == 0 {
		log.Warn().Msg("No text found, index unchanged")
		return nil
	}
	log.Info().Int("chunks", len(chunks)).Msg("Embedding and storing chunks")
	if err := svc.Commit(ctx, sess, chunks); err != nil {
		return err
	}
	log.Info().Int("files", len(paths)).Int("chunks", len(chunks)).Str("location", opts.cfg.Index.Location).Msg("Documents added")
	return nil
}

func prepareFile(svc *chat.Service, path string) ([]models.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return svc.Prepare(filepath.Base(path), data)
}

func printChunks(opts *options, paths []string) error {
	c, err := chunker.New(opts.cfg.RAG.ChunkSize, opts.cfg.RAG.ChunkOverlap)
	if err != nil {
		return err
	}
	loader := parser.NewLoader()
	for _, p := range paths {
		segments, err := loader.ParseFile(p)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping document")
			continue
		}
		helper.PrettyPrint(c.Chunk(filepath.Base(p), segments))
	}
	return nil
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
