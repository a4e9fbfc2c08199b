package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var errRowCountMismatch = errors.New("row count mismatch")

// Session runs commands against one adapter and writes their output.
type Session struct {
	Adapter DataStoreAdapter
	Logger  *zap.Logger

	// Project and Dataset fill in references that leave them out.
	Project string
	Dataset string

	Format     string
	Output     string
	ShowHeader bool
	PageSize   int
}

type ListOptions struct {
	StartIndex  uint64
	MaxResults  int
	Columns     []string
	VerifyCount bool
}

// ListRows resolves the table, then prints its rows: all of them, at most
// MaxResults of them, or at most MaxResults starting at StartIndex.
func (s *Session) ListRows(ctx context.Context, tableStr string, options ListOptions) error {
	t, err := s.parseTable(tableStr)
	if err != nil {
		return err
	}

	read := readOptions{StartIndex: options.StartIndex, MaxResults: options.MaxResults, PageSize: s.PageSize}
	if err := read.validate(); err != nil {
		return err
	}
	if options.VerifyCount && read.bounded() {
		return fmt.Errorf("%w: --verify-count cannot be combined with --start-index or --max-results", errInvalidOptions)
	}

	md, err := s.Adapter.FetchTableMetadata(ctx, t)
	if err != nil {
		return err
	}

	indexes, err := selectColumns(md.Columns, options.Columns)
	if err != nil {
		return err
	}

	if read.bounded() {
		fmt.Fprintf(os.Stderr, "Found %s, reading %s from offset %d...\n", pluralize(int(md.NumRows), s.Adapter.RowName()), describeMax(read.MaxResults), read.StartIndex)
	} else {
		fmt.Fprintf(os.Stderr, "Found %s, reading all...\n", pluralize(int(md.NumRows), s.Adapter.RowName()))
	}

	it, err := s.Adapter.FetchRows(ctx, t, read)
	if err != nil {
		return err
	}
	it = projectRowIterator(it, md.Columns, indexes)

	count, err := s.print(ctx, it)
	if err != nil {
		return err
	}

	s.logger().Info("listed rows", zap.String("table", t.displayName()), zap.Int("count", count))

	if options.VerifyCount && uint64(count) != md.NumRows {
		return fmt.Errorf("%w: read %d of %d rows from %s", errRowCountMismatch, count, md.NumRows, t.displayName())
	}
	return nil
}

var schemaColumns = []column{
	{Name: "name", Type: "STRING", Mode: "REQUIRED"},
	{Name: "type", Type: "STRING", Mode: "REQUIRED"},
	{Name: "mode", Type: "STRING", Mode: "REQUIRED"},
}

// Schema prints one row per column of the table.
func (s *Session) Schema(ctx context.Context, tableStr string) error {
	t, err := s.parseTable(tableStr)
	if err != nil {
		return err
	}

	md, err := s.Adapter.FetchTableMetadata(ctx, t)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "%s has %s and %s\n", t.displayName(), pluralize(len(md.Columns), "column"), pluralize(int(md.NumRows), s.Adapter.RowName()))
	if md.Description != "" {
		fmt.Fprintln(os.Stderr, md.Description)
	}

	rows := make([][]bigquery.Value, len(md.Columns))
	for i, c := range md.Columns {
		rows[i] = []bigquery.Value{c.Name, c.Type, c.Mode}
	}

	_, err = s.print(ctx, newSliceRows(schemaColumns, rows))
	return err
}

// Query runs sql and prints at most maxResults rows of the result.
func (s *Session) Query(ctx context.Context, sql string, maxResults int) error {
	if maxResults < 0 {
		return fmt.Errorf("%w: max results must not be negative", errInvalidOptions)
	}

	it, err := s.Adapter.Query(ctx, sql)
	if err != nil {
		return err
	}

	count, err := s.print(ctx, limitRowIterator(it, maxResults))
	if err != nil {
		return err
	}

	// the total is only known once the first page has been fetched
	if total := it.TotalRows(); total > uint64(count) {
		fmt.Fprintf(os.Stderr, "Read %d of %s\n", count, pluralize(int(total), s.Adapter.RowName()))
	} else {
		fmt.Fprintf(os.Stderr, "Read %s\n", pluralize(count, s.Adapter.RowName()))
	}
	return nil
}

var tablesColumns = []column{
	{Name: "table", Type: "STRING", Mode: "REQUIRED"},
	{Name: "type", Type: "STRING", Mode: "NULLABLE"},
	{Name: "num_rows", Type: "INTEGER", Mode: "NULLABLE"},
	{Name: "num_bytes", Type: "INTEGER", Mode: "NULLABLE"},
	{Name: "created", Type: "TIMESTAMP", Mode: "NULLABLE"},
	{Name: "last_modified", Type: "TIMESTAMP", Mode: "NULLABLE"},
}

// Tables prints the tables of a dataset with their sizes, fetching metadata
// with up to processes requests in flight.
func (s *Session) Tables(ctx context.Context, datasetStr string, processes int) error {
	if processes < 1 {
		return fmt.Errorf("%w: processes must be positive", errInvalidOptions)
	}

	if datasetStr == "" {
		datasetStr = s.Dataset
	}
	dataset, err := parseDataset(datasetStr, s.Project)
	if err != nil {
		return err
	}

	tables, err := s.Adapter.FetchTables(ctx, dataset)
	if err != nil {
		return err
	}

	if len(tables) == 0 {
		fmt.Fprintln(os.Stderr, "Found no "+s.Adapter.TableName()+"s in "+dataset.displayName())
		return nil
	}
	fmt.Fprintf(os.Stderr, "Found %s in %s...\n", pluralize(len(tables), s.Adapter.TableName()), dataset.displayName())

	metadata := make([]*tableMetadata, len(tables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(processes)
	for i, t := range tables {
		i, t := i, t
		g.Go(func() error {
			md, err := s.Adapter.FetchTableMetadata(gctx, t)
			if err != nil {
				return err
			}
			metadata[i] = md
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	rows := make([][]bigquery.Value, len(metadata))
	for i, md := range metadata {
		rows[i] = []bigquery.Value{md.Table.Name, md.Type, int64(md.NumRows), md.NumBytes, md.Created, md.LastModified}
	}

	_, err = s.print(ctx, newSliceRows(tablesColumns, rows))
	return err
}

func (s *Session) print(ctx context.Context, it RowIterator) (count int, err error) {
	newFormatter, found := Formatters[s.Format]
	if !found {
		return 0, fmt.Errorf("formatter %q is not supported. Valid formats are %s", s.Format, formatterNames())
	}

	out, err := openOutput(ctx, s.Output, s.Format, s.logger())
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			out.Abort()
			return
		}
		err = out.Close()
	}()

	return printRows(newFormatter(out, s.ShowHeader), it)
}

// parseTable also accepts a bare table name when a dataset is configured.
func (s *Session) parseTable(str string) (table, error) {
	if s.Dataset != "" && !strings.ContainsAny(str, ".:/") {
		t := datasetRef{Project: s.Project, Dataset: s.Dataset}.table(str)
		return t, t.validate()
	}
	return parseTable(str, s.Project)
}

func describeMax(max int) string {
	if max <= 0 {
		return "all"
	}
	return fmt.Sprintf("up to %d", max)
}

// Validate checks the session before any request is made.
func (s *Session) Validate() error {
	if s.Adapter == nil {
		return errors.New("adapter is required")
	}
	if _, found := Formatters[s.Format]; !found {
		return fmt.Errorf("formatter %q is not supported. Valid formats are %s", s.Format, formatterNames())
	}
	return nil
}

func (s *Session) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
