package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tagyourcity/backend/internal/export"
)

var (
	exportGeoJSONOut string
	exportCSVOut     string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write dataset exports without running the server",
}

var exportGeoJSONCmd = &cobra.Command{
	Use:   "geojson",
	Short: "Write the complete dataset as a GeoJSON FeatureCollection",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		data, err := st.ExportAll(cmd.Context())
		if err != nil {
			return err
		}
		fc, err := export.BuildFeatureCollection(data, time.Now().UTC())
		if err != nil {
			return err
		}

		f, err := os.Create(exportGeoJSONOut)
		if err != nil {
			return eris.Wrap(err, "export: create output file")
		}
		defer f.Close()

		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(fc); err != nil {
			return eris.Wrap(err, "export: write geojson")
		}

		zap.L().Info("geojson export written",
			zap.String("path", exportGeoJSONOut),
			zap.Int("features", fc.Metadata.TotalFeatures))
		return nil
	},
}

var exportCSVCmd = &cobra.Command{
	Use:   "csv",
	Short: "Write the cluster summary table as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		rows, err := st.ExportClusters(cmd.Context())
		if err != nil {
			return err
		}

		f, err := os.Create(exportCSVOut)
		if err != nil {
			return eris.Wrap(err, "export: create output file")
		}
		defer f.Close()

		if err := export.WriteClustersCSV(f, rows); err != nil {
			return err
		}

		zap.L().Info("csv export written",
			zap.String("path", exportCSVOut),
			zap.Int("clusters", len(rows)))
		return nil
	},
}

func init() {
	exportGeoJSONCmd.Flags().StringVarP(&exportGeoJSONOut, "out", "o", "tagyourcity_complete_export.geojson", "output file path")
	exportCSVCmd.Flags().StringVarP(&exportCSVOut, "out", "o", "tagyourcity_export.csv", "output file path")
	exportCmd.AddCommand(exportGeoJSONCmd)
	exportCmd.AddCommand(exportCSVCmd)
	rootCmd.AddCommand(exportCmd)
}
