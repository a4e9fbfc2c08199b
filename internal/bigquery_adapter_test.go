package internal

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/bitstore/bqrows/internal/bqtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
)

const testProject = "broad-bitstore-app"

var usage = table{Project: testProject, Dataset: "broad_bitstore_app", Name: "bits_billing_byfs_bitstore_historical"}

func TestFetchTableMetadata(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	md, err := adapter.FetchTableMetadata(context.Background(), usage)
	require.NoError(t, err)
	assert.Equal(t, uint64(37), md.NumRows)
	assert.Equal(t, "TABLE", md.Type)
	assert.Equal(t, "Daily filesystem usage", md.Description)
	assert.False(t, md.Created.IsZero())
	assert.Equal(t, []column{
		{Name: "id", Type: "INTEGER", Mode: "REQUIRED"},
		{Name: "filesystem", Type: "STRING", Mode: "NULLABLE"},
	}, md.Columns)
}

func TestConvertSchema(t *testing.T) {
	columns := convertSchema(bigquery.Schema{
		{Name: "id", Type: bigquery.IntegerFieldType, Required: true},
		{Name: "tags", Type: bigquery.StringFieldType, Repeated: true},
		{Name: "note", Type: bigquery.StringFieldType},
	})
	assert.Equal(t, []column{
		{Name: "id", Type: "INTEGER", Mode: "REQUIRED"},
		{Name: "tags", Type: "STRING", Mode: "REPEATED"},
		{Name: "note", Type: "STRING", Mode: "NULLABLE"},
	}, columns)
}

func TestFetchTableMetadataMissing(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	md, err := adapter.FetchTableMetadata(context.Background(), usage.dataset().table("missing"))
	assert.Nil(t, md)
	assert.ErrorIs(t, err, ErrTableNotFound)
	assert.Contains(t, err.Error(), "broad-bitstore-app.broad_bitstore_app.missing")
}

func TestFetchTableMetadataInvalid(t *testing.T) {
	adapter, srv := newTestAdapter(t)

	_, err := adapter.FetchTableMetadata(context.Background(), table{Project: testProject, Name: "x"})
	assert.ErrorIs(t, err, errInvalidTable)
	assert.Empty(t, srv.Requests())
}

func TestFetchRowsAll(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	rows := fetchAll(t, adapter, readOptions{})
	assert.Len(t, rows, 37)
	assert.Equal(t, int64(0), rows[0].At(0))
	assert.Equal(t, int64(36), rows[36].At(0))

	name, ok := rows[5].Get("filesystem")
	assert.True(t, ok)
	assert.Equal(t, "fs5", name)
}

func TestFetchRowsAllMatchesNumRows(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	md, err := adapter.FetchTableMetadata(context.Background(), usage)
	require.NoError(t, err)

	rows := fetchAll(t, adapter, readOptions{PageSize: 8})
	assert.Equal(t, md.NumRows, uint64(len(rows)))
}

func TestFetchRowsMaxResults(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	rows := fetchAll(t, adapter, readOptions{MaxResults: 10})
	assert.Len(t, rows, 10)
	assert.Equal(t, int64(9), rows[9].At(0))
}

func TestFetchRowsMaxResultsAboveTotal(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	rows := fetchAll(t, adapter, readOptions{MaxResults: 50})
	assert.Len(t, rows, 37)
}

func TestFetchRowsMaxResultsAcrossPages(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	rows := fetchAll(t, adapter, readOptions{MaxResults: 25, PageSize: 10})
	assert.Len(t, rows, 25)
	assert.Equal(t, int64(24), rows[24].At(0))
}

func TestFetchRowsWindow(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	rows := fetchAll(t, adapter, readOptions{StartIndex: 30, MaxResults: 10})
	assert.Len(t, rows, 7)
	assert.Equal(t, int64(30), rows[0].At(0))
	assert.Equal(t, int64(36), rows[6].At(0))
}

func TestFetchRowsWindowInside(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	rows := fetchAll(t, adapter, readOptions{StartIndex: 5, MaxResults: 3})
	assert.Len(t, rows, 3)
	assert.Equal(t, int64(5), rows[0].At(0))
}

func TestFetchRowsStartPastEnd(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	rows := fetchAll(t, adapter, readOptions{StartIndex: 100, MaxResults: 10})
	assert.Empty(t, rows)
}

func TestFetchRowsRestartable(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	assert.Len(t, fetchAll(t, adapter, readOptions{MaxResults: 4}), 4)
	assert.Len(t, fetchAll(t, adapter, readOptions{MaxResults: 4}), 4)
}

func TestFetchRowsNullValue(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	rows := fetchAll(t, adapter, readOptions{StartIndex: 3, MaxResults: 1})
	require.Len(t, rows, 1)
	v, ok := rows[0].Get("filesystem")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestFetchRowsMissing(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	it, err := adapter.FetchRows(context.Background(), usage.dataset().table("missing"), readOptions{})
	require.NoError(t, err)

	_, err = it.Next()
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestFetchRowsNegativeMax(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	_, err := adapter.FetchRows(context.Background(), usage, readOptions{MaxResults: -1})
	assert.ErrorIs(t, err, errInvalidOptions)
}

func TestQuery(t *testing.T) {
	adapter, srv := newTestAdapter(t)

	it, err := adapter.Query(context.Background(), "SELECT filesystem, id FROM broad_bitstore_app."+usage.Name)
	require.NoError(t, err)

	rows := drain(t, it)
	assert.Len(t, rows, 37)
	assert.Equal(t, uint64(37), it.TotalRows())
	assert.Equal(t, []column{
		{Name: "filesystem", Type: "STRING", Mode: "NULLABLE"},
		{Name: "id", Type: "INTEGER", Mode: "REQUIRED"},
	}, it.Columns())
	assert.Equal(t, []bigquery.Value{"fs5", int64(5)}, rows[5].Values())

	queries := 0
	for _, req := range srv.Requests() {
		if strings.HasPrefix(req, "POST ") && strings.HasSuffix(req, "/queries") {
			queries++
		}
	}
	assert.Equal(t, 1, queries)
}

func TestQueryMissingTable(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	_, err := adapter.Query(context.Background(), "SELECT * FROM broad_bitstore_app.missing")
	assert.ErrorContains(t, err, "running query: ")
	assert.ErrorContains(t, err, "Not found: Table broad-bitstore-app:broad_bitstore_app.missing")
}

func TestQueryRequired(t *testing.T) {
	adapter, srv := newTestAdapter(t)

	_, err := adapter.Query(context.Background(), "")
	assert.EqualError(t, err, "query is required")
	assert.Empty(t, srv.Requests())
}

func TestFetchTables(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	tables, err := adapter.FetchTables(context.Background(), usage.dataset())
	require.NoError(t, err)
	assert.Equal(t, []table{usage.dataset().table("bits_billing_byfs_bitstore_historical"), usage.dataset().table("empty")}, tables)
}

func TestFetchTablesMissingDataset(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	_, err := adapter.FetchTables(context.Background(), datasetRef{Project: testProject, Dataset: "nope"})
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

// helpers

func newTestAdapter(t *testing.T) (*BigQueryAdapter, *bqtest.Server) {
	t.Helper()

	srv := bqtest.NewServer()
	t.Cleanup(srv.Close)

	fields := []bqtest.Field{
		{Name: "id", Type: "INTEGER", Mode: "REQUIRED"},
		{Name: "filesystem", Type: "STRING", Mode: "NULLABLE"},
	}
	srv.AddTable(&bqtest.Table{
		Project: usage.Project,
		Dataset: usage.Dataset,
		ID:      usage.Name,
		Fields:  fields,
		Rows:    testRows(37),

		Description: "Daily filesystem usage",
	})
	srv.AddTable(&bqtest.Table{
		Project: usage.Project,
		Dataset: usage.Dataset,
		ID:      "empty",
		Fields:  fields,
	})

	adapter, err := NewBigQueryAdapter(context.Background(), testProject, "", zap.NewNop(), srv.ClientOptions()...)
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })

	return adapter, srv
}

func testRows(n int) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		var fs any = fmt.Sprintf("fs%d", i)
		if i == 3 {
			fs = nil
		}
		rows[i] = []any{i, fs}
	}
	return rows
}

func fetchAll(t *testing.T, adapter DataStoreAdapter, options readOptions) []Row {
	t.Helper()

	it, err := adapter.FetchRows(context.Background(), usage, options)
	require.NoError(t, err)

	rows := []Row{}
	for {
		row, err := it.Next()
		if err == iterator.Done {
			break
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
	return rows
}
