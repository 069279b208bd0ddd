package main

import (
	"github.com/spf13/cobra"

	"document-chat/internal/tui"
)

func newChatCmd(opts *options) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat in the terminal",
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
			if model != "" {
				if err := svc.SelectModel(sess, model); err != nil {
					return err
				}
			}
			return tui.Run(ctx, svc, *sess)
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "model id to start with")
	return cmd
}
