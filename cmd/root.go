package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/bitstore/bqrows/internal"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"
)

// clientOptions are appended to every BigQuery client's options.
var clientOptions []option.ClientOption

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bqrows [table]",
		Short: "Read rows from BigQuery tables",
		Long: `Read rows from a BigQuery table: all of them, the first --max-results,
or a window starting at --start-index.

Tables are named project.dataset.table, project:dataset.table,
bigquery://project/dataset/table, or dataset.table with --project.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return errors.New("requires a table")
			}

			maxResults, err := cmd.Flags().GetInt("max-results")
			if err != nil {
				return err
			}
			if maxResults < 0 {
				return errors.New("Max results must not be negative")
			}

			startIndex, err := cmd.Flags().GetUint64("start-index")
			if err != nil {
				return err
			}

			columns, err := cmd.Flags().GetStringSlice("columns")
			if err != nil {
				return err
			}

			verifyCount, err := cmd.Flags().GetBool("verify-count")
			if err != nil {
				return err
			}

			session, closeSession, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer closeSession()

			return session.ListRows(cmd.Context(), args[0], internal.ListOptions{
				StartIndex:  startIndex,
				MaxResults:  maxResults,
				Columns:     columns,
				VerifyCount: verifyCount,
			})
		},
	}

	rootCmd.PersistentFlags().String("project", "", "Project to bill and to resolve dataset.table names in")
	rootCmd.PersistentFlags().String("env", "", "Environment from the config file, such as dev or sandbox")
	rootCmd.PersistentFlags().String("config", "", "Config file (default bqrows.yaml)")
	rootCmd.PersistentFlags().String("credentials", "", "Service account credentials file")
	rootCmd.PersistentFlags().String("format", "text", "Output format")
	rootCmd.PersistentFlags().String("output", "", "Write output to a file or s3://bucket/key")
	rootCmd.PersistentFlags().Bool("header", false, "Print column names")
	rootCmd.PersistentFlags().Int("page-size", 0, "Rows per request")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log requests to stderr")

	rootCmd.Flags().Int("max-results", 0, "Maximum number of rows to read")
	rootCmd.Flags().Uint64("start-index", 0, "Zero-based row to start reading at")
	rootCmd.Flags().StringSlice("columns", nil, "Columns to print")
	rootCmd.Flags().Bool("verify-count", false, "Fail unless the number of rows read matches the table")

	rootCmd.AddCommand(newSchemaCmd(), newQueryCmd(), newTablesCmd())

	return rootCmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

