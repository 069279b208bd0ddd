package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"document-chat/internal/chromemdb"
	"document-chat/internal/helper"
	"document-chat/internal/vectorindex"
)

func newIndexCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect the persisted index",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Print the index manifest and chunk count",
			RunE: func(cmd *cobra.Command, args []string) error {
				ix, err := loadIndex(cmd.Context(), opts)
				if err != nil {
					return err
				}
				defer ix.Close()
				count, err := ix.Count(cmd.Context())
				if err != nil {
					return err
				}
				helper.PrettyPrint(map[string]interface{}{
					"location": ix.Location(),
					"manifest": ix.Manifest(),
					"chunks":   count,
				})
				return nil
			},
		},
		&cobra.Command{
			Use:   "export <file>",
			Short: "Write a snapshot of a folder index, encrypted when encryption_key is set",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ix, err := loadIndex(cmd.Context(), opts)
				if err != nil {
					return err
				}
				defer ix.Close()
				store, ok := ix.Store().(*chromemdb.VectorDBManager)
				if !ok {
					return errors.New("export is only supported for folder indexes")
				}
				return store.Export(cmd.Context(), args[0])
			},
		},
	)
	return cmd
}

func loadIndex(ctx context.Context, opts *options) (*vectorindex.Index, error) {
	indexer, err := newIndexer(opts.cfg)
	if err != nil {
		return nil, err
	}
	state, err := indexer.Load(ctx, opts.cfg.Index.Location)
	if err != nil {
		return nil, err
	}
	ix, ok := state.(*vectorindex.Index)
	if !ok {
		return nil, fmt.Errorf("no index at %s", opts.cfg.Index.Location)
	}
	return ix, nil
}
