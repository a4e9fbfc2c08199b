package internal

import (
	"context"
	"time"
)

type DataStoreAdapter interface {
	TableName() string
	RowName() string
	FetchTables(ctx context.Context, dataset datasetRef) ([]table, error)
	FetchTableMetadata(ctx context.Context, table table) (*tableMetadata, error)
	FetchRows(ctx context.Context, table table, options readOptions) (RowIterator, error)
	Query(ctx context.Context, sql string) (RowIterator, error)
	Close() error
}

type tableMetadata struct {
	Table        table
	Type         string
	Description  string
	NumRows      uint64
	NumBytes     int64
	Columns      []column
	Created      time.Time
	LastModified time.Time
}
