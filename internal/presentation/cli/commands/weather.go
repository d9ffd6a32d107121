package commands

import (
	"github.com/spf13/cobra"

	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
)

// NewWeatherCmd creates the weather command.
func NewWeatherCmd() *cobra.Command {
	var lat, lng float64

	cmd := &cobra.Command{
		Use:   "weather",
		Short: "Show the forecast for a field",
		Long: `Show current conditions and the daily outlook for a position. Forecasts
are cached for a short while and shown offline until they expire.`,
		Example: `  cropcare weather --lat 19.07 --lng 72.87`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lng") {
				return domainerrors.Validation("--lat and --lng are required")
			}
			if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
				return domainerrors.Validation("coordinates out of range: %v, %v", lat, lng)
			}

			c, formatter, err := connected(cmd)
			if err != nil {
				return err
			}
			forecast, err := c.Weather().Forecast(cmd.Context(), lat, lng)
			if err != nil {
				return err
			}
			return formatter.Forecast(forecast)
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude")

	return cmd
}
