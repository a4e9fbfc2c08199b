package internal

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/bigquery"
	mapset "github.com/deckarep/golang-set"
	"google.golang.org/api/iterator"
)

var errInvalidOptions = errors.New("invalid read options")

type column struct {
	Name string
	Type string
	Mode string
}

// Row is one record as returned by the service, in table column order.
type Row struct {
	columns []column
	values  []bigquery.Value
}

func newRow(columns []column, values []bigquery.Value) Row {
	return Row{columns: columns, values: values}
}

func (r Row) Len() int {
	return len(r.values)
}

func (r Row) At(i int) bigquery.Value {
	return r.values[i]
}

func (r Row) Get(name string) (bigquery.Value, bool) {
	for i, c := range r.columns {
		if c.Name == name && i < len(r.values) {
			return r.values[i], true
		}
	}
	return nil, false
}

func (r Row) Values() []bigquery.Value {
	return r.values
}

// Map keys each value by its column name.
func (r Row) Map() map[string]bigquery.Value {
	m := make(map[string]bigquery.Value, len(r.values))
	for i, v := range r.values {
		if i < len(r.columns) {
			m[r.columns[i].Name] = v
		}
	}
	return m
}

func (r Row) String() string {
	return fmt.Sprint(r.values)
}

// RowIterator is a lazy, forward-only sequence of rows. Next returns
// iterator.Done once the sequence is exhausted.
type RowIterator interface {
	Next() (Row, error)
	Columns() []column
	TotalRows() uint64
}

type readOptions struct {
	StartIndex uint64
	MaxResults int
	PageSize   int
}

func (o readOptions) validate() error {
	if o.MaxResults < 0 {
		return fmt.Errorf("%w: max results must not be negative", errInvalidOptions)
	}
	if o.PageSize < 0 {
		return fmt.Errorf("%w: page size must not be negative", errInvalidOptions)
	}
	return nil
}

func (o readOptions) bounded() bool {
	return o.StartIndex > 0 || o.MaxResults > 0
}

// pageSize is the page size to request, never larger than the cap.
func (o readOptions) pageSize() int {
	size := o.PageSize
	if o.MaxResults > 0 && (size == 0 || o.MaxResults < size) {
		size = o.MaxResults
	}
	return size
}

type limitRows struct {
	RowIterator
	remaining int
}

// limitRowIterator stops it after max rows. A max of zero means no limit.
func limitRowIterator(it RowIterator, max int) RowIterator {
	if max <= 0 {
		return it
	}
	return &limitRows{RowIterator: it, remaining: max}
}

func (l *limitRows) Next() (Row, error) {
	if l.remaining <= 0 {
		return Row{}, iterator.Done
	}
	row, err := l.RowIterator.Next()
	if err != nil {
		return row, err
	}
	l.remaining--
	return row, nil
}

type projectedRows struct {
	RowIterator
	indexes []int
	columns []column
}

func projectRowIterator(it RowIterator, all []column, indexes []int) RowIterator {
	if indexes == nil {
		return it
	}
	columns := make([]column, len(indexes))
	for i, idx := range indexes {
		columns[i] = all[idx]
	}
	return &projectedRows{RowIterator: it, indexes: indexes, columns: columns}
}

func (p *projectedRows) Next() (Row, error) {
	row, err := p.RowIterator.Next()
	if err != nil {
		return row, err
	}
	values := make([]bigquery.Value, len(p.indexes))
	for i, idx := range p.indexes {
		if idx < row.Len() {
			values[i] = row.At(idx)
		}
	}
	return newRow(p.columns, values), nil
}

func (p *projectedRows) Columns() []column {
	return p.columns
}

// selectColumns returns the positions of names within columns, or nil when
// names is empty.
func selectColumns(columns []column, names []string) ([]int, error) {
	if len(names) == 0 {
		return nil, nil
	}

	valid := mapset.NewSet()
	positions := make(map[string]int, len(columns))
	for i, c := range columns {
		valid.Add(c.Name)
		positions[c.Name] = i
	}

	requested := mapset.NewSet()
	for _, name := range names {
		requested.Add(name)
	}

	unknown := requested.Difference(valid)
	if unknown.Cardinality() > 0 {
		return nil, fmt.Errorf("Invalid columns: %s. Valid columns are %s", joinSet(unknown), joinSet(valid))
	}

	indexes := make([]int, len(names))
	for i, name := range names {
		indexes[i] = positions[name]
	}
	return indexes, nil
}

func joinSet(s mapset.Set) string {
	names := []string{}
	for _, v := range s.ToSlice() {
		names = append(names, v.(string))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
