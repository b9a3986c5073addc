package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"pegwatch/internal/app"
)

var (
	simulateAsset string
	simulatePrice float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Feed a synthetic price through the alert pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateAsset == "" {
			return errors.New("--asset is required")
		}
		if simulatePrice <= 0 {
			return errors.New("--price must be greater than 0")
		}

		opts := app.SimulateOptions{
			Asset: simulateAsset,
			Price: simulatePrice,
		}

		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateAsset, "asset", "", "Asset symbol to simulate (e.g. USDT)")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "Synthetic USD price to evaluate")
}
