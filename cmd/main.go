package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const configFilePath = "./configs/config.yaml"

func main() {
	if err := execute(newRootCmd()); err != nil {
		os.Exit(1)
	}
}

// execute runs root and reports a failed command on the log
func execute(root *cobra.Command) error {
	err := root.Execute()
	if err != nil {
		log.Error().Err(err).Msg("Command failed")
	}
	return err
}
