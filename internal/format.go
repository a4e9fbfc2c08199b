package internal

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"cloud.google.com/go/bigquery"
	"github.com/fatih/color"
	"google.golang.org/api/iterator"
)

// Formatter defines the interface used to deliver rows to the end user.
type Formatter interface {
	// Header is called once with the columns of the rows that follow.
	Header(columns []column) error

	AddRow(row Row) error

	// Flush is called when the formatter should finish outputing any data it
	// may have buffered.
	Flush() error
}

type FormatterFactory func(out io.Writer, showHeader bool) Formatter

// Formatters holds available formatters
var Formatters = map[string]FormatterFactory{
	"text": NewTextFormatter,
	"json": NewJSONFormatter,
	"csv":  NewCSVFormatter,
}

func formatterNames() string {
	return strings.Join(sortedKeys(Formatters), ", ")
}

// TextFormatter prints each row in its default string form.
type TextFormatter struct {
	io.Writer
	showHeader bool
}

func NewTextFormatter(out io.Writer, showHeader bool) Formatter {
	return TextFormatter{
		Writer:     out,
		showHeader: showHeader,
	}
}

func (f TextFormatter) Header(columns []column) error {
	if !f.showHeader || len(columns) == 0 {
		return nil
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = fmt.Sprintf("%-16s", c.Name)
	}
	_, err := fmt.Fprintln(f.Writer, yellow(strings.TrimRight(strings.Join(names, " "), " ")))
	return err
}

func (f TextFormatter) AddRow(row Row) error {
	_, err := fmt.Fprintln(f.Writer, row.String())
	return err
}

func (f TextFormatter) Flush() error { return nil }

// JSONFormatter prints the rows as a JSON array of objects keyed by column.
type JSONFormatter struct {
	sync.Mutex

	entries []map[string]bigquery.Value
	encoder *json.Encoder
}

func NewJSONFormatter(out io.Writer, showHeader bool) Formatter {
	return &JSONFormatter{
		entries: make([]map[string]bigquery.Value, 0),
		encoder: json.NewEncoder(out),
	}
}

func (f *JSONFormatter) Header(columns []column) error { return nil }

func (f *JSONFormatter) AddRow(row Row) error {
	f.Lock()
	defer f.Unlock()

	f.entries = append(f.entries, row.Map())
	return nil
}

func (f *JSONFormatter) Flush() error {
	f.Lock()
	defer f.Unlock()

	return f.encoder.Encode(&f.entries)
}

// CSVFormatter prints one record per row. NULL values are empty fields.
type CSVFormatter struct {
	writer     *csv.Writer
	showHeader bool
}

func NewCSVFormatter(out io.Writer, showHeader bool) Formatter {
	return &CSVFormatter{
		writer:     csv.NewWriter(out),
		showHeader: showHeader,
	}
}

func (f *CSVFormatter) Header(columns []column) error {
	if !f.showHeader || len(columns) == 0 {
		return nil
	}
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return f.writer.Write(names)
}

func (f *CSVFormatter) AddRow(row Row) error {
	record := make([]string, row.Len())
	for i, v := range row.Values() {
		if v != nil {
			record[i] = fmt.Sprint(v)
		}
	}
	return f.writer.Write(record)
}

func (f *CSVFormatter) Flush() error {
	f.writer.Flush()
	return f.writer.Error()
}

// printRows drains it into formatter and returns the number of rows printed.
func printRows(formatter Formatter, it RowIterator) (int, error) {
	count := 0
	for {
		row, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, err
		}

		// the schema is only known once the first page is fetched
		if count == 0 {
			if err := formatter.Header(it.Columns()); err != nil {
				return count, err
			}
		}

		if err := formatter.AddRow(row); err != nil {
			return count, err
		}
		count++
	}

	if count == 0 {
		if err := formatter.Header(it.Columns()); err != nil {
			return count, err
		}
	}

	return count, formatter.Flush()
}
