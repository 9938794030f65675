package main

import (
	"fmt"

	"github.com/aluiziolira/bookscrape/config"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Prints the resolved configuration without crawling.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(opts, cmd.Flags().Changed)
			if err != nil {
				return err
			}
			renderConfig(cmd, cfg)
			return nil
		},
	}
}

func renderConfig(cmd *cobra.Command, cfg *config.Config) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Setting", "Value"})
	t.AppendRows([]table.Row{
		{"base_url", cfg.BaseURL},
		{"entry_url", cfg.EntryURL()},
		{"max_pages", cfg.MaxPages},
		{"delay", cfg.Delay},
		{"random_delay", cfg.RandomDelay},
		{"follow_details", cfg.FollowDetails},
		{"detail_delay", cfg.DetailDelay},
		{"timeout", cfg.Timeout},
		{"max_retries", cfg.MaxRetries},
		{"retry_backoff", fmt.Sprintf("%s..%s", cfg.RetryBackoff, cfg.RetryBackoffMax)},
		{"abort_threshold", cfg.AbortThreshold},
		{"output_file", cfg.OutputFile},
		{"output_format", cfg.OutputFormat},
		{"csv_file", cfg.CSVFile()},
		{"json_file", cfg.JSONFile()},
		{"manifest_file", cfg.ManifestFile()},
		{"log_file", cfg.LogFile},
		{"respect_robots_txt", cfg.RespectRobotsTxt},
		{"metrics_addr", cfg.MetricsAddr},
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
}
