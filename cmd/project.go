package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"shiftscale/internal/projection"
)

var projectMethod string

var projectCmd = &cobra.Command{
	Use:   "project <latitude> <longitude>",
	Short: "Convert a WGS-84 latitude/longitude to planar coordinates",
	Long: `Convert a WGS-84 latitude/longitude in decimal degrees to SVY21
easting/northing, or to spherical Mercator x/y with --method mercator.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("latitude %q: %w", args[0], err)
		}
		lon, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("longitude %q: %w", args[1], err)
		}
		if !projection.ValidLatitude(lat) {
			return fmt.Errorf("latitude %g must lie between -90 and 90", lat)
		}

		var m projection.Method
		switch projectMethod {
		case "svy21":
			m = projection.MethodSVY21
		case "mercator", "webmercator":
			m = projection.MethodSphericalMercator
		default:
			return fmt.Errorf("unknown method %q (want svy21 or mercator)", projectMethod)
		}

		x, y := m.Forward(lat, lon)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: x=%.4f y=%.4f\n", m, x, y)
		return nil
	},
}

func init() {
	projectCmd.Flags().StringVarP(&projectMethod, "method", "m", "svy21", "projection: svy21 or mercator")
	rootCmd.AddCommand(projectCmd)
}
