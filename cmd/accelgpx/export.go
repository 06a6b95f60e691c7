package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"accelgpx/internal/replay"
	"accelgpx/internal/tracker"
)

func newExportCmd(v *viper.Viper) *cobra.Command {
	var (
		inputPath string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a recorded replay log as GPX",
		Long: "export reads a log written by 'run --record' (or by hand) into a fresh session, " +
			"correlates it with the configured alignment and writes the GPX file.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, true)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}

			events, err := replay.Open(inputPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("input %s does not exist", inputPath)
				}
				return fmt.Errorf("read input: %w", err)
			}
			// Logs without a wall-clock origin are placed at the current time.
			accels, fixes := replay.Split(events, time.Now().UTC())

			sum, err := tracker.ExportRecorded(cmd.Context(), trackerConfig(cfg), accels, fixes)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sum)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s points=%d dropped_accels=%d dropped_fixes=%d\n",
				sum.Path, sum.Points, sum.DroppedAccels, sum.DroppedFixes)
			return err
		},
	}
	cmd.Flags().StringVar(&inputPath, "input", "", "replay log to export")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the export summary as JSON")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
