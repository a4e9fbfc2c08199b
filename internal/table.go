package internal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var errInvalidTable = errors.New("invalid table")

type datasetRef struct {
	Project string
	Dataset string
}

func (d datasetRef) displayName() string {
	return d.Project + "." + d.Dataset
}

func (d datasetRef) validate() error {
	if d.Project == "" {
		return fmt.Errorf("%w: project is required", errInvalidTable)
	}
	if d.Dataset == "" {
		return fmt.Errorf("%w: dataset is required", errInvalidTable)
	}
	return nil
}

func (d datasetRef) table(name string) table {
	return table{Project: d.Project, Dataset: d.Dataset, Name: name}
}

type table struct {
	Project string
	Dataset string
	Name    string
}

func (t table) dataset() datasetRef {
	return datasetRef{Project: t.Project, Dataset: t.Dataset}
}

func (t table) displayName() string {
	str := t.Name
	if t.Dataset != "" {
		str = t.Dataset + "." + str
	}
	if t.Project != "" {
		str = t.Project + "." + str
	}
	return str
}

func (t table) validate() error {
	if err := t.dataset().validate(); err != nil {
		return err
	}
	if t.Name == "" {
		return fmt.Errorf("%w: table name is required", errInvalidTable)
	}
	return nil
}

// parseTable accepts project.dataset.table, project:dataset.table,
// bigquery://project/dataset/table and dataset.table (project taken from
// defaultProject).
func parseTable(str string, defaultProject string) (table, error) {
	var t table

	if strings.HasPrefix(str, "bigquery://") {
		u, err := url.Parse(str)
		if err != nil {
			return t, fmt.Errorf("%w: %v", errInvalidTable, err)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) != 2 {
			return t, fmt.Errorf("%w: expected bigquery://project/dataset/table, got %q", errInvalidTable, str)
		}
		t = table{Project: u.Host, Dataset: parts[0], Name: parts[1]}
		return t, t.validate()
	}

	// project IDs may be domain-scoped, such as google.com:my-proj
	if i := strings.LastIndex(str, ":"); i >= 0 {
		parts := strings.Split(str[i+1:], ".")
		switch len(parts) {
		case 2:
			t = table{Project: str[:i], Dataset: parts[0], Name: parts[1]}
		case 3:
			t = table{Project: str[:i+1] + parts[0], Dataset: parts[1], Name: parts[2]}
		default:
			return t, fmt.Errorf("%w: expected project:dataset.table, got %q", errInvalidTable, str)
		}
		return t, t.validate()
	}

	parts := strings.Split(str, ".")
	switch len(parts) {
	case 3:
		t = table{Project: parts[0], Dataset: parts[1], Name: parts[2]}
	case 2:
		t = table{Project: defaultProject, Dataset: parts[0], Name: parts[1]}
	default:
		return t, fmt.Errorf("%w: expected project.dataset.table, got %q", errInvalidTable, str)
	}
	return t, t.validate()
}

// parseDataset accepts project.dataset, project:dataset and dataset.
func parseDataset(str string, defaultProject string) (datasetRef, error) {
	var d datasetRef

	if i := strings.LastIndex(str, ":"); i >= 0 {
		parts := strings.Split(str[i+1:], ".")
		switch len(parts) {
		case 1:
			d = datasetRef{Project: str[:i], Dataset: parts[0]}
		case 2:
			d = datasetRef{Project: str[:i+1] + parts[0], Dataset: parts[1]}
		default:
			return d, fmt.Errorf("%w: expected project:dataset, got %q", errInvalidTable, str)
		}
		return d, d.validate()
	}

	parts := strings.Split(str, ".")
	switch len(parts) {
	case 2:
		d = datasetRef{Project: parts[0], Dataset: parts[1]}
	case 1:
		d = datasetRef{Project: defaultProject, Dataset: parts[0]}
	default:
		return d, fmt.Errorf("%w: expected project.dataset, got %q", errInvalidTable, str)
	}
	return d, d.validate()
}
