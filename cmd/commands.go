package cmd

import (
	"errors"
	"fmt"

	"github.com/bitstore/bqrows/internal"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [table]",
		Short: "Print the columns of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, closeSession, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer closeSession()

			return session.Schema(cmd.Context(), args[0])
		},
	}
}

func newQueryCmd() *cobra.Command {
	queryCmd := &cobra.Command{
		Use:   "query [sql]",
		Short: "Run a query and print its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			maxResults, err := cmd.Flags().GetInt("max-results")
			if err != nil {
				return err
			}

			session, closeSession, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer closeSession()

			return session.Query(cmd.Context(), args[0], maxResults)
		},
	}
	queryCmd.Flags().Int("max-results", 0, "Maximum number of rows to print")
	return queryCmd
}

func newTablesCmd() *cobra.Command {
	tablesCmd := &cobra.Command{
		Use:   "tables [dataset]",
		Short: "List the tables in a dataset with their sizes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			processes, err := cmd.Flags().GetInt("processes")
			if err != nil {
				return err
			}

			session, closeSession, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer closeSession()

			dataset := ""
			if len(args) > 0 {
				dataset = args[0]
			}
			return session.Tables(cmd.Context(), dataset, processes)
		},
	}
	tablesCmd.Flags().Int("processes", 4, "Tables to describe concurrently")
	return tablesCmd
}

// newSession resolves configuration from flags, environment and config file
// and connects to BigQuery. The returned func closes the client.
func newSession(cmd *cobra.Command) (*internal.Session, func(), error) {
	flags := cmd.Flags()

	var overrides internal.Overrides
	var err error
	if overrides.Env, err = flags.GetString("env"); err != nil {
		return nil, nil, err
	}
	if overrides.ConfigPath, err = flags.GetString("config"); err != nil {
		return nil, nil, err
	}
	if overrides.Project, err = flags.GetString("project"); err != nil {
		return nil, nil, err
	}
	if overrides.CredentialsFile, err = flags.GetString("credentials"); err != nil {
		return nil, nil, err
	}

	format, err := flags.GetString("format")
	if err != nil {
		return nil, nil, err
	}
	if _, found := internal.Formatters[format]; !found {
		return nil, nil, fmt.Errorf("formatter %q is not supported", format)
	}

	output, err := flags.GetString("output")
	if err != nil {
		return nil, nil, err
	}

	showHeader, err := flags.GetBool("header")
	if err != nil {
		return nil, nil, err
	}

	pageSize, err := flags.GetInt("page-size")
	if err != nil {
		return nil, nil, err
	}
	if pageSize < 0 {
		return nil, nil, errors.New("Page size must not be negative")
	}

	verbose, err := flags.GetBool("verbose")
	if err != nil {
		return nil, nil, err
	}

	cfg, err := internal.LoadConfigFromEnv(overrides)
	if err != nil {
		return nil, nil, err
	}
	if pageSize > 0 {
		cfg.PageSize = pageSize
	}

	logger, err := internal.NewLogger(verbose)
	if err != nil {
		return nil, nil, err
	}

	opts := append([]option.ClientOption{}, clientOptions...)
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	adapter, err := internal.NewBigQueryAdapter(cmd.Context(), cfg.Project, cfg.Location, logger, opts...)
	if err != nil {
		return nil, nil, err
	}

	project := cfg.Project
	if project == "" {
		project = adapter.Client.Project()
	}

	session := &internal.Session{
		Adapter:    adapter,
		Logger:     logger,
		Project:    project,
		Dataset:    cfg.Dataset,
		Format:     format,
		Output:     output,
		ShowHeader: showHeader,
		PageSize:   cfg.PageSize,
	}
	if err := session.Validate(); err != nil {
		adapter.Close()
		return nil, nil, err
	}

	return session, func() {
		adapter.Close()
		logger.Sync()
	}, nil
}
