// Package chart maps executed query results to chart metadata.
//
// Each chart kind is one registry entry: its metadata type, JSON schema, tool
// description and prompt steps. Adding a kind means adding an entry here; the
// orchestrator derives its chart tools from the registry.
package chart

import (
	"fmt"
	"sort"
	"strings"
)

// Kind names a chart family.
type Kind string

const (
	Bar      Kind = "bar"
	Map      Kind = "map"
	Area     Kind = "area"
	Line     Kind = "line"
	Dot      Kind = "dot"
	Beeswarm Kind = "beeswarm"
	Heatmap  Kind = "heatmap"
)

// Kinds lists every supported kind in presentation order.
var Kinds = []Kind{Bar, Map, Area, Line, Dot, Beeswarm, Heatmap}

// Entry describes one chart kind.
type Entry struct {
	Kind Kind
	// Label is the capitalized name used in tool messages.
	Label string
	// Description is shown to the orchestrating model.
	Description string
	// New returns an empty metadata value to decode into.
	New func() Metadata
	// Fields lists the metadata properties in schema order.
	Fields []Field
	// Expert completes "You are an expert in data visualization".
	Expert string
	// Noun is the thing the model is asked to create, with its article.
	Noun  string
	Steps []string
	Notes []string
}

// Field is one metadata property.
type Field struct {
	Name        string
	Description string
	Optional    bool
}

// Schema returns the strict JSON schema of the entry's metadata.
func (e Entry) Schema() map[string]interface{} {
	props := make(map[string]interface{}, len(e.Fields))
	required := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		typ := interface{}("string")
		if f.Optional {
			typ = []string{"string", "null"}
		}
		props[f.Name] = map[string]interface{}{"type": typ, "description": f.Description}
		required = append(required, f.Name)
	}
	return map[string]interface{}{
		"title":                e.Label + "ChartMetadata",
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// ToolName is the name of the kind's convenience tool.
func (e Entry) ToolName() string {
	return "generate_" + string(e.Kind) + "_chart_metadata"
}

var colorSchemes = `"Oranges", "Blues", "Greens", "Reds", "Purples", "Viridis"`

var registry = map[Kind]Entry{
	Bar: {
		Kind:  Bar,
		Label: "Bar",
		Description: "Generates metadata to use when creating a bar chart.\n\n" +
			"Use this tool to compare a numeric value across categories.\n\n" +
			"Requires that we've generated a table of data first.",
		New: func() Metadata { return &BarMetadata{} },
		Fields: []Field{
			{Name: "title", Description: "A descriptive chart title"},
			{Name: "x_column", Description: "The categorical column for the X-axis"},
			{Name: "y_column", Description: "The numeric column for the Y-axis"},
			{Name: "grouping_column", Description: "An optional column used to group bars", Optional: true},
		},
		Noun: "a bar chart",
		Steps: []string{
			"Identifying the best categorical field for the X-axis",
			"Identifying a numeric field for the Y-axis",
			"Creating a descriptive title",
			"Optionally identifying a column that should be used for grouping",
		},
	},
	Map: {
		Kind:  Map,
		Label: "Map",
		Description: "Generates metadata to use when creating a choropleth map visualization.\n\n" +
			"Use this tool when the user wants to visualize geographic data by country " +
			"(e.g., showing values across African countries). The data must contain " +
			"ISO3 country codes (like 'KEN', 'NGA', 'ZAF').\n\n" +
			"Requires that we've generated a table of data first with a column containing " +
			"ISO3 country codes.",
		New: func() Metadata { return &MapMetadata{} },
		Fields: []Field{
			{Name: "title", Description: "A descriptive map title"},
			{Name: "id_column", Description: "The column holding ISO3 country codes"},
			{Name: "value_column", Description: "The numeric column used to color the map"},
			{Name: "color_scheme", Description: "The color scheme, defaults to Oranges", Optional: true},
		},
		Expert: ", specifically geographic/choropleth maps",
		Noun:   "a choropleth map",
		Steps: []string{
			"Identifying the column containing ISO3 country codes (3-letter codes like 'KEN', 'NGA', 'ZAF', 'ETH')",
			"Identifying the numeric column to use for coloring the map",
			"Creating a descriptive title",
			`Optionally suggesting a color scheme (default is "Oranges")`,
		},
		Notes: []string{
			"The id_column should contain ISO3 country codes",
			"The value_column should be numeric",
			"Color schemes: " + colorSchemes,
		},
	},
	Area: {
		Kind:  Area,
		Label: "Area",
		Description: "Generates metadata to use when creating a stacked area chart visualization.\n\n" +
			"Use this tool when the user wants to visualize time series or sequential data " +
			"with multiple categories stacked on top of each other. Best for showing how " +
			"parts contribute to a whole over time or across ordered categories.\n\n" +
			"Requires that we've generated a table of data first.",
		New: func() Metadata { return &AreaMetadata{} },
		Fields: []Field{
			{Name: "title", Description: "A descriptive chart title"},
			{Name: "x_column", Description: "The sequential or time column for the X-axis"},
			{Name: "y_column", Description: "The numeric column to stack"},
			{Name: "grouping_column", Description: "An optional column defining the stacked categories", Optional: true},
		},
		Noun: "a stacked area chart",
		Steps: []string{
			"Identifying the best sequential/time field for the X-axis (e.g., year, date, time)",
			"Identifying a numeric field for the Y-axis (values to be stacked)",
			"Creating a descriptive title",
			"Optionally identifying a column for grouping into stacked categories",
		},
		Notes: []string{
			"The x_column should be a sequential or time-based field (years, dates, etc.)",
			"The y_column should be numeric",
			"The grouping_column creates the stacked categories (if present in the data)",
		},
	},
	Line: {
		Kind:  Line,
		Label: "Line",
		Description: "Generates metadata to use when creating a line chart visualization.\n\n" +
			"Use this tool to show a trend of a numeric value over time or another " +
			"ordered field, optionally with one line per category.\n\n" +
			"Requires that we've generated a table of data first.",
		New: func() Metadata { return &LineMetadata{} },
		Fields: []Field{
			{Name: "title", Description: "A descriptive chart title"},
			{Name: "x_column", Description: "The sequential or time column for the X-axis"},
			{Name: "y_column", Description: "The numeric column for the Y-axis"},
			{Name: "grouping_column", Description: "An optional column producing one line per value", Optional: true},
		},
		Noun: "a line chart",
		Steps: []string{
			"Identifying the best sequential/time field for the X-axis (e.g., year, date, time)",
			"Identifying a numeric field for the Y-axis",
			"Creating a descriptive title",
			"Optionally identifying a column that splits the data into separate lines",
		},
		Notes: []string{
			"The x_column should be a sequential or time-based field (years, dates, etc.)",
			"The y_column should be numeric",
		},
	},
	Dot: {
		Kind:  Dot,
		Label: "Dot",
		Description: "Generates metadata to use when creating a dot plot or scatter plot.\n\n" +
			"Use this tool to show the relationship between two numeric fields, or " +
			"individual values across categories, optionally sized by a third field.\n\n" +
			"Requires that we've generated a table of data first. " + ColumnOrder,
		New: func() Metadata { return &DotMetadata{} },
		Fields: []Field{
			{Name: "title", Description: "A descriptive chart title"},
			{Name: "x_column", Description: "The column for the X-axis"},
			{Name: "y_column", Description: "The column for the Y-axis"},
			{Name: "grouping_column", Description: "An optional column used to color dots", Optional: true},
			{Name: "size_column", Description: "An optional numeric column used to size dots", Optional: true},
		},
		Noun: "a dot plot",
		Steps: []string{
			"Identifying the field for the X-axis",
			"Identifying the field for the Y-axis, at least one of the axes must be numeric",
			"Creating a descriptive title",
			"Optionally identifying a column for coloring dots by group",
			"Optionally identifying a numeric column for sizing dots",
		},
		Notes: []string{
			"The size_column must be numeric if present",
		},
	},
	Beeswarm: {
		Kind:  Beeswarm,
		Label: "Beeswarm",
		Description: "Generates metadata to use when creating a beeswarm chart.\n\n" +
			"Use this tool to show the distribution of many individual numeric values " +
			"across a small number of categories.\n\n" +
			"Requires that we've generated a table of data first.",
		New: func() Metadata { return &BeeswarmMetadata{} },
		Fields: []Field{
			{Name: "title", Description: "A descriptive chart title"},
			{Name: "category_column", Description: "The categorical column that splits the swarm"},
			{Name: "value_column", Description: "The numeric column positioning each dot"},
			{Name: "color_column", Description: "An optional column used to color dots", Optional: true},
		},
		Noun: "a beeswarm chart",
		Steps: []string{
			"Identifying the categorical field that separates the swarms",
			"Identifying the numeric field that positions each dot",
			"Creating a descriptive title",
			"Optionally identifying a column for coloring dots (defaults to the category)",
		},
		Notes: []string{
			"The value_column should be numeric",
			"Each row becomes one dot, so the data should not be aggregated",
		},
	},
	Heatmap: {
		Kind:  Heatmap,
		Label: "Heatmap",
		Description: "Generates metadata to use when creating a heatmap.\n\n" +
			"Use this tool when the data has two categorical dimensions and one numeric " +
			"value, such as a value per crop and per country.\n\n" +
			"Requires that we've generated a table of data first. " + ColumnOrder,
		New: func() Metadata { return &HeatmapMetadata{} },
		Fields: []Field{
			{Name: "title", Description: "A descriptive chart title"},
			{Name: "x_column", Description: "The categorical column for the X-axis"},
			{Name: "y_column", Description: "The categorical column for the Y-axis"},
			{Name: "value_column", Description: "The numeric column used to color cells"},
			{Name: "color_scheme", Description: "The color scheme, defaults to YlOrRd", Optional: true},
		},
		Noun: "a heatmap",
		Steps: []string{
			"Identifying a categorical field for the X-axis",
			"Identifying a second categorical field for the Y-axis",
			"Identifying the numeric field used to color each cell",
			"Creating a descriptive title",
			`Optionally suggesting a color scheme (default is "YlOrRd")`,
		},
		Notes: []string{
			"The value_column should be numeric and is the second column of the data",
			`Color schemes: "YlOrRd", ` + colorSchemes,
		},
	},
}

// Lookup returns the registry entry for kind.
func Lookup(kind string) (Entry, bool) {
	e, ok := registry[Kind(strings.ToLower(strings.TrimSpace(kind)))]
	return e, ok
}

// Entries returns the registry entries in Kinds order.
func Entries() []Entry {
	out := make([]Entry, 0, len(Kinds))
	for _, k := range Kinds {
		out = append(out, registry[k])
	}
	return out
}

// ValidKinds returns the kind names in Kinds order.
func ValidKinds() []string {
	out := make([]string, len(Kinds))
	for i, k := range Kinds {
		out[i] = string(k)
	}
	return out
}

// UnknownKindMessage is the tool message for an unsupported kind.
func UnknownKindMessage(kind string) string {
	return fmt.Sprintf("Unknown chart kind %q. Valid chart kinds are: %s", kind, strings.Join(ValidKinds(), ", "))
}

// ValidateRegistry checks that every kind has a complete entry whose schema
// covers each column the metadata type can reference. It runs at startup.
func ValidateRegistry() error {
	return validate(registry, Kinds)
}

func validate(reg map[Kind]Entry, kinds []Kind) error {
	var problems []string
	for _, k := range kinds {
		e, ok := reg[k]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: no registry entry", k))
			continue
		}
		if e.Kind != k {
			problems = append(problems, fmt.Sprintf("%s: entry is registered as %s", k, e.Kind))
		}
		if e.Label == "" || e.Description == "" || e.Noun == "" || len(e.Steps) == 0 {
			problems = append(problems, fmt.Sprintf("%s: incomplete entry", k))
		}
		if e.New == nil {
			problems = append(problems, fmt.Sprintf("%s: no metadata type", k))
			continue
		}
		fields := make(map[string]bool, len(e.Fields))
		for _, f := range e.Fields {
			fields[f.Name] = true
		}
		if !fields["title"] {
			problems = append(problems, fmt.Sprintf("%s: schema has no title", k))
		}
		if err := checkFields(e.New(), fields); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", k, err))
		}
	}
	for k := range reg {
		if !contains(kinds, k) {
			problems = append(problems, fmt.Sprintf("%s: registered but not a known kind", k))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid chart registry: %s", strings.Join(problems, "; "))
	}
	return nil
}

func contains(kinds []Kind, k Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}
