// Package bqtest serves the subset of the BigQuery REST API used for reading
// tables, backed by in-memory data.
package bqtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/option"
)

type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Mode string `json:"mode,omitempty"`
}

type Table struct {
	Project string
	Dataset string
	ID      string
	Fields  []Field
	Rows    [][]any

	Description string

	// Modified defaults to the time the table was added.
	Modified time.Time
}

type Server struct {
	*httptest.Server

	mu       sync.Mutex
	tables   map[string]*Table
	requests []string
	jobs     map[string]*queryResult
}

func NewServer() *Server {
	s := &Server{tables: map[string]*Table{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// ClientOptions points a bigquery client at the server.
func (s *Server) ClientOptions() []option.ClientOption {
	return []option.ClientOption{
		option.WithEndpoint(s.URL),
		option.WithoutAuthentication(),
	}
}

func (s *Server) AddTable(t *Table) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Modified.IsZero() {
		t.Modified = time.Now()
	}
	s.tables[key(t.Project, t.Dataset, t.ID)] = t
}

// Requests returns the method and path of every request served so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.requests...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	s.mu.Unlock()

	i := strings.Index(r.URL.Path, "/projects/")
	if i < 0 {
		writeError(w, http.StatusNotImplemented, "unsupported request: "+r.Method+" "+r.URL.Path)
		return
	}

	// projects/{p}/datasets/{d}/tables[/{t}[/data]], projects/{p}/queries[/{id}]
	// and projects/{p}/jobs
	parts := strings.Split(strings.Trim(r.URL.Path[i:], "/"), "/")
	switch {
	case r.Method == http.MethodGet && len(parts) == 5 && parts[2] == "datasets" && parts[4] == "tables":
		s.listTables(w, r, parts[1], parts[3])
	case r.Method == http.MethodGet && len(parts) == 6 && parts[4] == "tables":
		s.getTable(w, parts[1], parts[3], parts[5])
	case r.Method == http.MethodGet && len(parts) == 7 && parts[4] == "tables" && parts[6] == "data":
		s.listRows(w, r, parts[1], parts[3], parts[5])
	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "queries":
		s.runQuery(w, r, parts[1])
	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "jobs":
		s.insertJob(w, r, parts[1])
	case r.Method == http.MethodGet && len(parts) == 4 && parts[2] == "queries":
		s.getQueryResults(w, r, parts[1], parts[3])
	default:
		writeError(w, http.StatusNotImplemented, "unsupported request: "+r.Method+" "+r.URL.Path)
	}
}

func (s *Server) lookup(project, dataset, id string) (*Table, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[key(project, dataset, id)]
	return t, ok
}

func (s *Server) listTables(w http.ResponseWriter, r *http.Request, project, dataset string) {
	s.mu.Lock()
	ids := []string{}
	for _, t := range s.tables {
		if t.Project == project && t.Dataset == dataset {
			ids = append(ids, t.ID)
		}
	}
	s.mu.Unlock()

	if len(ids) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Not found: Dataset %s:%s", project, dataset))
		return
	}
	sort.Strings(ids)

	tables := make([]map[string]any, len(ids))
	for i, id := range ids {
		tables[i] = map[string]any{
			"kind":           "bigquery#table",
			"id":             fmt.Sprintf("%s:%s.%s", project, dataset, id),
			"tableReference": reference(project, dataset, id),
			"type":           "TABLE",
		}
	}

	writeJSON(w, map[string]any{
		"kind":       "bigquery#tableList",
		"tables":     tables,
		"totalItems": len(tables),
	})
}

func (s *Server) getTable(w http.ResponseWriter, project, dataset, id string) {
	t, ok := s.lookup(project, dataset, id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Not found: Table %s:%s.%s", project, dataset, id))
		return
	}

	modified := strconv.FormatInt(t.Modified.UnixMilli(), 10)
	writeJSON(w, map[string]any{
		"kind":             "bigquery#table",
		"id":               fmt.Sprintf("%s:%s.%s", project, dataset, id),
		"tableReference":   reference(project, dataset, id),
		"type":             "TABLE",
		"description":      t.Description,
		"schema":           map[string]any{"fields": t.Fields},
		"numRows":          strconv.Itoa(len(t.Rows)),
		"numBytes":         strconv.Itoa(len(t.Rows) * 8 * len(t.Fields)),
		"creationTime":     modified,
		"lastModifiedTime": modified,
	})
}

func (s *Server) listRows(w http.ResponseWriter, r *http.Request, project, dataset, id string) {
	t, ok := s.lookup(project, dataset, id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Not found: Table %s:%s.%s", project, dataset, id))
		return
	}

	body := page(r, t.Rows)
	body["kind"] = "bigquery#tableDataList"
	writeJSON(w, body)
}

// page returns the window of rows selected by the pageToken, startIndex and
// maxResults parameters, encoded the way the REST API encodes cells.
func page(r *http.Request, all [][]any) map[string]any {
	q := r.URL.Query()
	start := 0
	if token := q.Get("pageToken"); token != "" {
		start, _ = strconv.Atoi(token)
	} else if v := q.Get("startIndex"); v != "" {
		start, _ = strconv.Atoi(v)
	}
	if start > len(all) {
		start = len(all)
	}

	end := len(all)
	if v := q.Get("maxResults"); v != "" {
		if max, err := strconv.Atoi(v); err == nil && max > 0 && start+max < end {
			end = start + max
		}
	}

	body := map[string]any{
		"totalRows": strconv.Itoa(len(all)),
		"rows":      encodeRows(all[start:end]),
	}
	if end < len(all) {
		body["pageToken"] = strconv.Itoa(end)
	}
	return body
}

func encodeRows(values [][]any) []map[string]any {
	rows := make([]map[string]any, 0, len(values))
	for _, row := range values {
		cells := make([]map[string]any, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = map[string]any{"v": nil}
			} else {
				cells[i] = map[string]any{"v": fmt.Sprint(v)}
			}
		}
		rows = append(rows, map[string]any{"f": cells})
	}
	return rows
}

func key(project, dataset, id string) string {
	return project + ":" + dataset + "." + id
}

func reference(project, dataset, id string) map[string]string {
	return map[string]string{"projectId": project, "datasetId": dataset, "tableId": id}
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	reason := "notFound"
	if code != http.StatusNotFound {
		reason = "invalid"
	}
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"errors": []map[string]string{
				{"message": message, "domain": "global", "reason": reason},
			},
		},
	})
}
