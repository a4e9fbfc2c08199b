package internal

import (
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

func pluralize(count int, singular string) string {
	if count != 1 {
		if singular == "index" {
			singular = "indices"
		} else if strings.HasSuffix(singular, "ch") {
			singular = singular + "es"
		} else {
			singular = singular + "s"
		}
	}
	return fmt.Sprintf("%d %s", count, singular)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sliceRows serves rows built locally, such as schema listings.
type sliceRows struct {
	columns []column
	rows    [][]bigquery.Value
	pos     int
}

func newSliceRows(columns []column, rows [][]bigquery.Value) *sliceRows {
	return &sliceRows{columns: columns, rows: rows}
}

func (s *sliceRows) Next() (Row, error) {
	if s.pos >= len(s.rows) {
		return Row{}, iterator.Done
	}
	row := newRow(s.columns, s.rows[s.pos])
	s.pos++
	return row, nil
}

func (s *sliceRows) Columns() []column {
	return s.columns
}

func (s *sliceRows) TotalRows() uint64 {
	return uint64(len(s.rows))
}
