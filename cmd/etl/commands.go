package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/vibration-severity-etl/internal/pipeline"
	"github.com/spf13/cobra"
)

func newAnalyzeCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "analyze [FILE]",
		Short: "Analyse one sensor log, or every log in DATA_DIR",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, func(a *app) error {
				analyzer, err := a.analyzer()
				if err != nil {
					return err
				}
				if len(args) == 1 {
					report, err := analyzer.AnalyzeFile(ctx, args[0])
					if err != nil {
						return fmt.Errorf("analyze %s: %w", args[0], err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d samples, %d seconds, report %s\n",
						report.FileName, report.Samples, report.Buckets, report.ReportPath)
					return nil
				}
				summary, err := analyzer.AnalyzeDir(ctx, a.cfg.DataDir, force)
				if err != nil {
					return err
				}
				return summaryError("analyze", summary)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "re-analyse files that are already stored")
	return cmd
}

func newGPSCmd() *cobra.Command {
	gps := &cobra.Command{
		Use:   "gps",
		Short: "Import and process GPS tracks",
	}
	gps.AddCommand(
		&cobra.Command{
			Use:   "import",
			Short: "Import every GPX track in GPX_DIR",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd.Context(), func(a *app) error {
					summary, err := a.gpsProcessor().ImportDir(cmd.Context(), a.cfg.GPXDir)
					if err != nil {
						return err
					}
					return summaryError("gps import", summary)
				})
			},
		},
		&cobra.Command{
			Use:   "process",
			Short: "Interpolate gaps and derive velocities from imported points",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd.Context(), func(a *app) error {
					report, err := a.gpsProcessor().Derive(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%d raw points, %d interpolated, %d derived\n",
						report.Raw, report.Interpolated, report.Derived)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear-raw",
			Short: "Delete every imported GPS point",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd.Context(), func(a *app) error {
					n, err := a.store.ClearGPSRaw(cmd.Context())
					if err != nil {
						return err
					}
					a.logger.Info("gps raw cleared", "rows", n)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear-results",
			Short: "Delete every derived GPS record",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd.Context(), func(a *app) error {
					n, err := a.store.ClearGPSResults(cmd.Context())
					if err != nil {
						return err
					}
					a.logger.Info("gps results cleared", "rows", n)
					return nil
				})
			},
		},
	)
	return gps
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete FILE",
		Short: "Delete the stored raw samples and results of one log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := filepath.Base(args[0])
			return withApp(cmd.Context(), func(a *app) error {
				counts, err := a.store.DeleteFile(cmd.Context(), name)
				if err != nil {
					return err
				}
				a.logger.Info("file deleted", "file", name, "raw", counts.Raw, "results", counts.Results)
				return nil
			})
		},
	}
}

func newExportCmd() *cobra.Command {
	export := &cobra.Command{
		Use:   "export",
		Short: "Export stored data",
	}

	var out string
	geojson := &cobra.Command{
		Use:   "geojson",
		Short: "Write the severity map layer as GeoJSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				layer, err := a.severityMapper().FullLayer(cmd.Context())
				if err != nil {
					return err
				}
				body, err := layer.Marshal()
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					_, err = cmd.OutOrStdout().Write(append(body, '\n'))
					return err
				}
				if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
					return fmt.Errorf("create output dir: %w", err)
				}
				if err := os.WriteFile(out, body, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", out, err)
				}
				a.logger.Info("severity map written", "path", out, "features", len(layer.Features))
				return nil
			})
		},
	}
	geojson.Flags().StringVarP(&out, "out", "o", "", "output path (default stdout)")

	export.AddCommand(geojson)
	return export
}

// summaryError turns failed files of a batch into a command error so the
// process exits non-zero.
func summaryError(op string, s pipeline.BatchSummary) error {
	if s.Failed == 0 {
		return nil
	}
	first := s.Errors[0]
	return fmt.Errorf("%s: %d of %d files failed, first %s: %w",
		op, s.Failed, s.Processed+s.Skipped+s.Failed, first.FileName, first.Err)
}
