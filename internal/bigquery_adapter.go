package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

var (
	ErrTableNotFound   = errors.New("table not found")
	ErrDatasetNotFound = errors.New("dataset not found")
)

type BigQueryAdapter struct {
	Client *bigquery.Client
	logger *zap.Logger
}

// NewBigQueryAdapter creates a client billed to project. An empty project
// falls back to the project detected from the credentials.
func NewBigQueryAdapter(ctx context.Context, project string, location string, logger *zap.Logger, opts ...option.ClientOption) (*BigQueryAdapter, error) {
	if project == "" {
		project = bigquery.DetectProjectID
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	if location != "" {
		client.Location = location
	}
	logger.Debug("created bigquery client", zap.String("project", client.Project()), zap.String("location", location))

	return &BigQueryAdapter{Client: client, logger: logger}, nil
}

func (a *BigQueryAdapter) TableName() string {
	return "table"
}

func (a *BigQueryAdapter) RowName() string {
	return "row"
}

func (a *BigQueryAdapter) Close() error {
	return a.Client.Close()
}

func (a *BigQueryAdapter) FetchTables(ctx context.Context, dataset datasetRef) ([]table, error) {
	if err := dataset.validate(); err != nil {
		return nil, err
	}

	tables := []table{}

	it := a.Client.DatasetInProject(dataset.Project, dataset.Dataset).Tables(ctx)
	for {
		t, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("%w: %s: %w", ErrDatasetNotFound, dataset.displayName(), err)
			}
			return nil, fmt.Errorf("listing tables in %s: %w", dataset.displayName(), err)
		}
		tables = append(tables, table{Project: t.ProjectID, Dataset: t.DatasetID, Name: t.TableID})
	}

	a.logger.Debug("listed tables", zap.String("dataset", dataset.displayName()), zap.Int("count", len(tables)))
	return tables, nil
}

func (a *BigQueryAdapter) FetchTableMetadata(ctx context.Context, t table) (*tableMetadata, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	md, err := a.bqTable(t).Metadata(ctx)
	if err != nil {
		return nil, tableError(t, err)
	}

	a.logger.Debug("resolved table", zap.String("table", t.displayName()), zap.Uint64("rows", md.NumRows))

	return &tableMetadata{
		Table:        t,
		Type:         string(md.Type),
		Description:  md.Description,
		NumRows:      md.NumRows,
		NumBytes:     md.NumBytes,
		Columns:      convertSchema(md.Schema),
		Created:      md.CreationTime,
		LastModified: md.LastModifiedTime,
	}, nil
}

func (a *BigQueryAdapter) FetchRows(ctx context.Context, t table, options readOptions) (RowIterator, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	if err := options.validate(); err != nil {
		return nil, err
	}

	it := a.bqTable(t).Read(ctx)
	it.StartIndex = options.StartIndex
	if size := options.pageSize(); size > 0 {
		it.PageInfo().MaxSize = size
	}

	a.logger.Debug("listing rows",
		zap.String("table", t.displayName()),
		zap.Uint64("start_index", options.StartIndex),
		zap.Int("max_results", options.MaxResults),
		zap.Int("page_size", options.pageSize()),
	)

	rows := &bigQueryRows{
		it:   it,
		wrap: func(err error) error { return tableError(t, err) },
	}
	return limitRowIterator(rows, options.MaxResults), nil
}

func (a *BigQueryAdapter) Query(ctx context.Context, sql string) (RowIterator, error) {
	if sql == "" {
		return nil, errors.New("query is required")
	}

	a.logger.Debug("running query", zap.String("sql", sql))

	it, err := a.Client.Query(sql).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("running query: %w", err)
	}

	return &bigQueryRows{
		it:   it,
		wrap: func(err error) error { return fmt.Errorf("reading query results: %w", err) },
	}, nil
}

func (a *BigQueryAdapter) bqTable(t table) *bigquery.Table {
	return a.Client.DatasetInProject(t.Project, t.Dataset).Table(t.Name)
}

type bigQueryRows struct {
	it      *bigquery.RowIterator
	wrap    func(error) error
	columns []column
}

func (r *bigQueryRows) Next() (Row, error) {
	var values []bigquery.Value
	err := r.it.Next(&values)
	if err == iterator.Done {
		return Row{}, err
	}
	if err != nil {
		return Row{}, r.wrap(err)
	}
	return newRow(r.Columns(), values), nil
}

// Columns is empty until the first page has been fetched.
func (r *bigQueryRows) Columns() []column {
	if r.columns == nil && r.it.Schema != nil {
		r.columns = convertSchema(r.it.Schema)
	}
	return r.columns
}

func (r *bigQueryRows) TotalRows() uint64 {
	return r.it.TotalRows
}

// helpers

func convertSchema(schema bigquery.Schema) []column {
	columns := make([]column, len(schema))
	for i, f := range schema {
		mode := "NULLABLE"
		if f.Repeated {
			mode = "REPEATED"
		} else if f.Required {
			mode = "REQUIRED"
		}
		columns[i] = column{Name: f.Name, Type: string(f.Type), Mode: mode}
	}
	return columns
}

func tableError(t table, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: %s: %w", ErrTableNotFound, t.displayName(), err)
	}
	return fmt.Errorf("%s: %w", t.displayName(), err)
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
