package bqtest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
)

func TestQueryJob(t *testing.T) {
	srv, client := newTestClient(t)

	q := client.Query("SELECT id FROM `test-project.logs.events`")
	// a fixed job ID keeps the client off jobs.query
	q.JobID = "fixed_job"
	it, err := q.Read(context.Background())
	require.NoError(t, err)
	it.PageInfo().MaxSize = 10

	ids := []int64{}
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		require.NoError(t, err)
		ids = append(ids, row[0].(int64))
	}
	assert.Len(t, ids, 25)
	assert.Equal(t, int64(24), ids[24])
	assert.Equal(t, uint64(25), it.TotalRows)

	assert.True(t, requested(srv, "POST", "/projects/test-project/jobs"))
	assert.True(t, requested(srv, "GET", "/projects/test-project/queries/fixed_job"))
}

func TestQueryLimit(t *testing.T) {
	srv, client := newTestClient(t)

	it, err := client.Query("SELECT name, id FROM logs.events LIMIT 3").Read(context.Background())
	require.NoError(t, err)

	var rows [][]bigquery.Value
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
	assert.Equal(t, [][]bigquery.Value{{"event0", int64(0)}, {"event1", int64(1)}, {"event2", int64(2)}}, rows)
	assert.Equal(t, "name", it.Schema[0].Name)
	assert.True(t, requested(srv, "POST", "/projects/test-project/queries"))
}

func TestQueryErrors(t *testing.T) {
	_, client := newTestClient(t)

	_, err := client.Query("SELECT * FROM logs.missing").Read(context.Background())
	assert.ErrorContains(t, err, "Not found: Table test-project:logs.missing")

	_, err = client.Query("DELETE FROM logs.events").Read(context.Background())
	assert.ErrorContains(t, err, "unsupported query")

	_, err = client.Query("SELECT nope FROM logs.events").Read(context.Background())
	assert.ErrorContains(t, err, "Unrecognized name: nope")
}

func requested(srv *Server, method, path string) bool {
	for _, req := range srv.Requests() {
		if strings.HasPrefix(req, method+" ") && strings.HasSuffix(req, path) {
			return true
		}
	}
	return false
}

func newTestClient(t *testing.T) (*Server, *bigquery.Client) {
	t.Helper()

	srv := NewServer()
	t.Cleanup(srv.Close)

	rows := make([][]any, 25)
	for i := range rows {
		rows[i] = []any{i, fmt.Sprintf("event%d", i)}
	}
	srv.AddTable(&Table{
		Project: "test-project",
		Dataset: "logs",
		ID:      "events",
		Fields: []Field{
			{Name: "id", Type: "INTEGER", Mode: "REQUIRED"},
			{Name: "name", Type: "STRING"},
		},
		Rows: rows,
	})

	client, err := bigquery.NewClient(context.Background(), "test-project", srv.ClientOptions()...)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return srv, client
}
