// Package dataset renders the collected records into an ARFF file, the
// machine-learning-ready output of the pipeline.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klimeurt/repohealth-collector/internal/record"
)

// Kind is the declared ARFF type of an attribute.
type Kind int

const (
	Numeric Kind = iota
	String
	Flag // nominal {true,false}
)

// Attribute is one column of the dataset schema.
type Attribute struct {
	Name string
	Kind Kind
	// Value extracts the column value; ok=false renders the ARFF missing
	// marker.
	Value func(*record.Record) (any, bool)
}

func numericAttr(key string) Attribute {
	return Attribute{Name: key, Kind: Numeric, Value: func(r *record.Record) (any, bool) {
		n, ok := r.AttrInt(key)
		return n, ok
	}}
}

func flagAttr(key string) Attribute {
	return Attribute{Name: key, Kind: Flag, Value: func(r *record.Record) (any, bool) {
		b, ok := r.AttrBool(key)
		return b, ok
	}}
}

// Schema is the fixed attribute list, target column (contributor count)
// last by convention.
func Schema() []Attribute {
	return []Attribute{
		{Name: "name", Kind: String, Value: func(r *record.Record) (any, bool) {
			return r.Identity().String(), true
		}},
		{Name: "language", Kind: String, Value: func(r *record.Record) (any, bool) {
			if r.Language == "" {
				return "none", true
			}
			return r.Language, true
		}},
		{Name: "license", Kind: String, Value: func(r *record.Record) (any, bool) {
			if r.License == "" {
				return "none", true
			}
			return r.License, true
		}},
		{Name: "size", Kind: Numeric, Value: func(r *record.Record) (any, bool) { return r.Size, true }},
		{Name: "stars", Kind: Numeric, Value: func(r *record.Record) (any, bool) { return r.Stars, true }},
		{Name: "watchers", Kind: Numeric, Value: func(r *record.Record) (any, bool) { return r.Watchers, true }},
		{Name: "forks", Kind: Numeric, Value: func(r *record.Record) (any, bool) { return r.Forks, true }},
		{Name: "open_issues", Kind: Numeric, Value: func(r *record.Record) (any, bool) { return r.OpenIssues, true }},
		{Name: "topics_count", Kind: Numeric, Value: func(r *record.Record) (any, bool) { return len(r.Topics), true }},
		{Name: "has_issues", Kind: Flag, Value: func(r *record.Record) (any, bool) { return r.HasIssues, true }},
		{Name: "has_projects", Kind: Flag, Value: func(r *record.Record) (any, bool) { return r.HasProjects, true }},
		{Name: "has_downloads", Kind: Flag, Value: func(r *record.Record) (any, bool) { return r.HasDownloads, true }},
		{Name: "has_wiki", Kind: Flag, Value: func(r *record.Record) (any, bool) { return r.HasWiki, true }},
		{Name: "has_pages", Kind: Flag, Value: func(r *record.Record) (any, bool) { return r.HasPages, true }},
		flagAttr(record.AttrHasReadme),
		numericAttr(record.AttrReadmeSize),
		flagAttr(record.AttrHasLicenseFile),
		flagAttr(record.AttrHasCodeOfConduct),
		flagAttr(record.AttrHasContributing),
		flagAttr(record.AttrHasIssueTemplate),
		flagAttr(record.AttrHasPRTemplate),
		flagAttr(record.AttrHasSecurityPolicy),
		flagAttr(record.AttrHasSupport),
		flagAttr(record.AttrHasFunding),
		flagAttr(record.AttrHasCodeowners),
		flagAttr(record.AttrHasChangelog),
		flagAttr(record.AttrHasCodespaces),
		numericAttr(record.AttrLanguagesCount),
		numericAttr(record.AttrWorkflowsCount),
		numericAttr(record.AttrReleasesCount),
		numericAttr(record.AttrEnvironmentsCount),
		flagAttr(record.AttrHasDeployments),
		numericAttr(record.AttrLabelsCount),
		numericAttr(record.AttrMilestonesCount),
		numericAttr(record.AttrContributors),
	}
}

// Emitter writes the dataset file.
type Emitter struct {
	Path     string
	Relation string
}

// New creates an Emitter for the given output path.
func New(path string) *Emitter {
	return &Emitter{Path: path, Relation: "repository_health"}
}

// Render produces the full ARFF document for the given records.
func (e *Emitter) Render(records []*record.Record) string {
	schema := Schema()

	var b strings.Builder
	fmt.Fprintf(&b, "@relation %s\n\n", e.Relation)
	for _, attr := range schema {
		switch attr.Kind {
		case Numeric:
			fmt.Fprintf(&b, "@attribute %s numeric\n", attr.Name)
		case String:
			fmt.Fprintf(&b, "@attribute %s string\n", attr.Name)
		case Flag:
			fmt.Fprintf(&b, "@attribute %s {true,false}\n", attr.Name)
		}
	}
	b.WriteString("\n@data\n")

	for _, rec := range records {
		fields := make([]string, len(schema))
		for i, attr := range schema {
			fields[i] = renderValue(attr, rec)
		}
		b.WriteString(strings.Join(fields, ","))
		b.WriteByte('\n')
	}
	return b.String()
}

// Write renders and atomically replaces the dataset file.
func (e *Emitter) Write(records []*record.Record) error {
	content := e.Render(records)

	dir := filepath.Dir(e.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dataset directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(e.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary dataset file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write dataset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temporary dataset file: %w", err)
	}
	if err := os.Rename(tmpName, e.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace dataset: %w", err)
	}
	return nil
}

func renderValue(attr Attribute, rec *record.Record) string {
	v, ok := attr.Value(rec)
	if !ok {
		return "?"
	}
	switch val := v.(type) {
	case bool:
		if val {
			return "true"
		}
		return "false"
	case string:
		return quote(val)
	case int:
		return fmt.Sprintf("%d", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// quote wraps an ARFF string value in single quotes, escaping embedded
// quotes and backslashes.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}
