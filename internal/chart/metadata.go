package chart

import (
	"fmt"
	"reflect"
	"strings"
)

// Metadata is the synthesized description of one chart. Fields ending in
// _column name columns of the executed result.
type Metadata interface {
	// Columns returns every column the metadata references.
	Columns() []string
	// normalize fills defaults for absent optional fields.
	normalize()
}

type BarMetadata struct {
	Title          string  `json:"title"`
	XColumn        string  `json:"x_column"`
	YColumn        string  `json:"y_column"`
	GroupingColumn *string `json:"grouping_column"`
}

func (m *BarMetadata) Columns() []string {
	return columns(m.XColumn, m.YColumn, deref(m.GroupingColumn))
}

func (m *BarMetadata) normalize() { m.GroupingColumn = nonEmpty(m.GroupingColumn) }

// MapMetadata drives a choropleth of countries keyed by ISO3 code.
type MapMetadata struct {
	Title       string  `json:"title"`
	IDColumn    string  `json:"id_column"`
	ValueColumn string  `json:"value_column"`
	ColorScheme *string `json:"color_scheme"`
}

func (m *MapMetadata) Columns() []string { return columns(m.IDColumn, m.ValueColumn) }

func (m *MapMetadata) normalize() { m.ColorScheme = withDefault(m.ColorScheme, "Oranges") }

type AreaMetadata struct {
	Title          string  `json:"title"`
	XColumn        string  `json:"x_column"`
	YColumn        string  `json:"y_column"`
	GroupingColumn *string `json:"grouping_column"`
}

func (m *AreaMetadata) Columns() []string {
	return columns(m.XColumn, m.YColumn, deref(m.GroupingColumn))
}

func (m *AreaMetadata) normalize() { m.GroupingColumn = nonEmpty(m.GroupingColumn) }

type LineMetadata struct {
	Title          string  `json:"title"`
	XColumn        string  `json:"x_column"`
	YColumn        string  `json:"y_column"`
	GroupingColumn *string `json:"grouping_column"`
}

func (m *LineMetadata) Columns() []string {
	return columns(m.XColumn, m.YColumn, deref(m.GroupingColumn))
}

func (m *LineMetadata) normalize() { m.GroupingColumn = nonEmpty(m.GroupingColumn) }

type DotMetadata struct {
	Title          string  `json:"title"`
	XColumn        string  `json:"x_column"`
	YColumn        string  `json:"y_column"`
	GroupingColumn *string `json:"grouping_column"`
	SizeColumn     *string `json:"size_column"`
}

func (m *DotMetadata) Columns() []string {
	return columns(m.XColumn, m.YColumn, deref(m.GroupingColumn), deref(m.SizeColumn))
}

func (m *DotMetadata) normalize() {
	m.GroupingColumn = nonEmpty(m.GroupingColumn)
	m.SizeColumn = nonEmpty(m.SizeColumn)
}

type BeeswarmMetadata struct {
	Title          string  `json:"title"`
	CategoryColumn string  `json:"category_column"`
	ValueColumn    string  `json:"value_column"`
	ColorColumn    *string `json:"color_column"`
}

func (m *BeeswarmMetadata) Columns() []string {
	return columns(m.CategoryColumn, m.ValueColumn, deref(m.ColorColumn))
}

func (m *BeeswarmMetadata) normalize() { m.ColorColumn = nonEmpty(m.ColorColumn) }

type HeatmapMetadata struct {
	Title       string  `json:"title"`
	XColumn     string  `json:"x_column"`
	YColumn     string  `json:"y_column"`
	ValueColumn string  `json:"value_column"`
	ColorScheme *string `json:"color_scheme"`
}

func (m *HeatmapMetadata) Columns() []string {
	return columns(m.XColumn, m.YColumn, m.ValueColumn)
}

func (m *HeatmapMetadata) normalize() { m.ColorScheme = withDefault(m.ColorScheme, "YlOrRd") }

func columns(names ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func withDefault(s *string, def string) *string {
	if s == nil || *s == "" {
		return &def
	}
	return s
}

// checkFields compares the JSON properties of meta with the schema fields.
func checkFields(meta Metadata, fields map[string]bool) error {
	t := reflect.TypeOf(meta)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	tags := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name := strings.Split(t.Field(i).Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		tags[name] = true
		if !fields[name] {
			return fmt.Errorf("property %s is missing from the schema", name)
		}
	}
	for name := range fields {
		if !tags[name] {
			return fmt.Errorf("schema field %s has no property", name)
		}
	}
	return nil
}
