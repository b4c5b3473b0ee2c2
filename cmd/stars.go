package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0xlemi/earnote/internal/score"
)

var starsCmd = &cobra.Command{
	Use:   "stars",
	Short: "Show the stars earned so far",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		total, err := score.NewFileStore(cfg.Score.File).Total()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "★ %d\n", total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(starsCmd)
}
