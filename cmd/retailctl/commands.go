package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	analyticsRepo "github.com/ridloal/retail-analytics-engine/internal/analytics/repository"
	"github.com/ridloal/retail-analytics-engine/internal/platform/config"
	"github.com/ridloal/retail-analytics-engine/internal/platform/database"
	"github.com/ridloal/retail-analytics-engine/internal/report"
)

type rootOptions struct {
	configPath string
	timeout    time.Duration
}

func (o *rootOptions) load() (config.FileConfig, error) {
	return config.LoadFile(o.configPath)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "retailctl",
		Short:        "Operate the retail analytics engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultFileName, "Config file path")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "Operation timeout")

	root.AddCommand(
		newInitCmd(),
		newBigQueryCmd(opts),
		newReportCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newInitCmd() *cobra.Command {
	var (
		output string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WriteFile(output, config.DefaultFileConfig(), force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", config.DefaultFileName, "Where to write the config file")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func newBigQueryCmd(opts *rootOptions) *cobra.Command {
	bq := &cobra.Command{
		Use:   "bigquery",
		Short: "Manage the BigQuery dataset",
	}

	var sqlFile string
	setup := &cobra.Command{
		Use:   "setup",
		Short: "Create the dataset and tables, or run a SQL script",
		Long: `Create the configured dataset with the sales_facts and analytics_queries
tables. With --sql, run the statements of a SQL file in order instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			src, err := analyticsRepo.NewBigQuerySource(ctx, cfg.Project, cfg.Dataset)
			if err != nil {
				return err
			}
			defer src.Close()

			out := cmd.OutOrStdout()
			if sqlFile != "" {
				script, err := os.ReadFile(sqlFile)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", sqlFile, err)
				}
				n, err := src.RunScript(ctx, string(script))
				if err != nil {
					return fmt.Errorf("ran %d statements before failing: %w", n, err)
				}
				fmt.Fprintf(out, "Executed %d statements from %s\n", n, sqlFile)
				return nil
			}

			if err := src.EnsureDataset(ctx, cfg.Location); err != nil {
				return err
			}
			fmt.Fprintf(out, "Dataset %s.%s ready in %s\n", cfg.Project, cfg.Dataset, cfg.Location)
			return nil
		},
	}
	setup.Flags().StringVar(&sqlFile, "sql", "", "SQL script to execute statement by statement")
	bq.AddCommand(setup)
	return bq
}

func newReportCmd(opts *rootOptions) *cobra.Command {
	var (
		source string
		format string
		output string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a dashboard report from an analytics source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if source != "" {
				cfg.Source = source
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			// Rendered in memory so a failed run leaves an existing -o file untouched.
			var buf bytes.Buffer
			writer, err := report.NewWriter(format, &buf)
			if err != nil {
				return err
			}

			src, closer, err := openSource(ctx, cfg)
			if err != nil {
				return err
			}
			defer closer.Close()

			r, err := report.Collect(ctx, src, limit, time.Now())
			if err != nil {
				return err
			}
			if _, err := writer.Write(r); err != nil {
				return err
			}

			if output == "" {
				_, err = buf.WriteTo(cmd.OutOrStdout())
				return err
			}
			if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Analytics source: static, sql or bigquery (default from config)")
	cmd.Flags().StringVar(&format, "format", "markdown", "Output format: markdown or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().IntVar(&limit, "limit", report.DefaultLimit, "Rows in the product and category tables")
	return cmd
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openSource(ctx context.Context, cfg config.FileConfig) (analyticsRepo.Source, io.Closer, error) {
	switch cfg.Source {
	case "static":
		return analyticsRepo.NewStaticSource(), nopCloser{}, nil
	case "sql":
		if cfg.DatabaseDSN == "" {
			return nil, nil, fmt.Errorf("the sql source needs database_dsn in the config or ANALYTICS_DB_DSN")
		}
		db, err := database.Connect(cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := database.EnsureSchema(ctx, db, analyticsRepo.Schema); err != nil {
			db.Close()
			return nil, nil, err
		}
		return analyticsRepo.NewSQLSource(db), db, nil
	case "bigquery":
		src, err := analyticsRepo.NewBigQuerySource(ctx, cfg.Project, cfg.Dataset)
		if err != nil {
			return nil, nil, err
		}
		return src, src, nil
	default:
		return nil, nil, fmt.Errorf("unknown source %q (want static, sql or bigquery)", cfg.Source)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "retailctl %s\n", config.Version)
		},
	}
}
