package bqtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// queryPattern is the only SQL the server understands:
// SELECT * | col, ... FROM [`]table[`] [LIMIT n]
var queryPattern = regexp.MustCompile("(?is)^\\s*SELECT\\s+(.+?)\\s+FROM\\s+`?([\\w.:-]+)`?(?:\\s+LIMIT\\s+(\\d+))?\\s*;?\\s*$")

type queryResult struct {
	project string
	jobID   string
	fields  []Field
	rows    [][]any
}

type queryError struct {
	code    int
	message string
}

// evaluate runs sql against the in-memory tables. Unqualified table names
// resolve in project.
func (s *Server) evaluate(project, sql string) (*queryResult, *queryError) {
	m := queryPattern.FindStringSubmatch(sql)
	if m == nil {
		return nil, &queryError{http.StatusBadRequest, "Syntax error: unsupported query: " + sql}
	}

	ref := strings.Replace(m[2], ":", ".", 1)
	parts := strings.Split(ref, ".")
	if len(parts) == 2 {
		parts = append([]string{project}, parts...)
	}
	if len(parts) != 3 {
		return nil, &queryError{http.StatusBadRequest, "Table name missing dataset: " + m[2]}
	}

	t, ok := s.lookup(parts[0], parts[1], parts[2])
	if !ok {
		return nil, &queryError{http.StatusNotFound, fmt.Sprintf("Not found: Table %s:%s.%s", parts[0], parts[1], parts[2])}
	}

	indexes := []int{}
	if strings.TrimSpace(m[1]) == "*" {
		for i := range t.Fields {
			indexes = append(indexes, i)
		}
	} else {
		for _, name := range strings.Split(m[1], ",") {
			name = strings.TrimSpace(name)
			found := false
			for i, f := range t.Fields {
				if strings.EqualFold(f.Name, name) {
					indexes = append(indexes, i)
					found = true
					break
				}
			}
			if !found {
				return nil, &queryError{http.StatusBadRequest, "Unrecognized name: " + name}
			}
		}
	}

	limit := len(t.Rows)
	if m[3] != "" {
		if n, err := strconv.Atoi(m[3]); err == nil && n < limit {
			limit = n
		}
	}

	res := &queryResult{project: project, fields: make([]Field, len(indexes))}
	for i, idx := range indexes {
		res.fields[i] = t.Fields[idx]
	}
	for _, row := range t.Rows[:limit] {
		values := make([]any, len(indexes))
		for i, idx := range indexes {
			values[i] = row[idx]
		}
		res.rows = append(res.rows, values)
	}
	return res, nil
}

func (s *Server) saveJob(res *queryResult, jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.jobs == nil {
		s.jobs = map[string]*queryResult{}
	}
	if jobID == "" {
		jobID = fmt.Sprintf("bqtest_job_%d", len(s.jobs)+1)
	}
	res.jobID = jobID
	s.jobs[jobID] = res
}

// runQuery serves jobs.query, which answers synchronously.
func (s *Server) runQuery(w http.ResponseWriter, r *http.Request, project string) {
	var req struct {
		Query      string `json:"query"`
		MaxResults int    `json:"maxResults"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, qerr := s.evaluate(project, req.Query)
	if qerr != nil {
		writeError(w, qerr.code, qerr.message)
		return
	}
	s.saveJob(res, "")

	body := map[string]any{
		"kind":         "bigquery#queryResponse",
		"jobComplete":  true,
		"jobReference": jobReference(res),
		"schema":       map[string]any{"fields": res.fields},
		"totalRows":    strconv.Itoa(len(res.rows)),
		"rows":         encodeRows(res.rows),
	}
	writeJSON(w, body)
}

// insertJob serves jobs.insert for query jobs, which complete immediately.
func (s *Server) insertJob(w http.ResponseWriter, r *http.Request, project string) {
	var job struct {
		JobReference struct {
			JobID string `json:"jobId"`
		} `json:"jobReference"`
		Configuration struct {
			Query struct {
				Query string `json:"query"`
			} `json:"query"`
		} `json:"configuration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, qerr := s.evaluate(project, job.Configuration.Query.Query)
	if qerr != nil {
		writeError(w, qerr.code, qerr.message)
		return
	}
	s.saveJob(res, job.JobReference.JobID)

	writeJSON(w, map[string]any{
		"kind":          "bigquery#job",
		"id":            project + ":" + res.jobID,
		"jobReference":  jobReference(res),
		"configuration": map[string]any{"query": map[string]any{"query": job.Configuration.Query.Query}},
		"status":        map[string]any{"state": "DONE"},
	})
}

// getQueryResults serves the pages of a finished query job.
func (s *Server) getQueryResults(w http.ResponseWriter, r *http.Request, project, jobID string) {
	s.mu.Lock()
	res, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Not found: Job %s:%s", project, jobID))
		return
	}

	body := page(r, res.rows)
	body["kind"] = "bigquery#getQueryResultsResponse"
	body["jobComplete"] = true
	body["jobReference"] = jobReference(res)
	body["schema"] = map[string]any{"fields": res.fields}
	writeJSON(w, body)
}

func jobReference(res *queryResult) map[string]string {
	return map[string]string{"projectId": res.project, "jobId": res.jobID, "location": "US"}
}
