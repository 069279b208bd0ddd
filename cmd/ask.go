package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd(opts *options) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := newService(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer svc.Close()
			sess, err := svc.NewSession(ctx)
			if err != nil {
				return err
			}
			resp, err := svc.Ask(ctx, sess, model, strings.Join(args, " "))
			if err != nil {
				return err
			}

			fmt.Printf("%s\n\n", resp.Content)
			fmt.Println("Sources:")
			for _, m := range resp.Sources {
				fmt.Printf("  %s p.%d #%d (%.3f)\n", m.Chunk.Source, m.Chunk.PageNumber, m.Chunk.ChunkID, m.Similarity)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "model id from the catalog (default: first entry)")
	return cmd
}
