package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pegwatch/internal/app"
)

var (
	showHistory int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Fetch and display the current stability verdicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showHistory < 0 {
			return fmt.Errorf("--history must not be negative")
		}

		opts := app.ShowOptions{
			History: showHistory,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showHistory, "history", 0, "Also display the last N historical price points per asset")
}
