package orchestrator

import (
	"encoding/json"
	"strings"

	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
)

// TableArtifact is attached to execute_sql results.
type TableArtifact struct {
	Data     *models.Table `json:"data"`
	SQLQuery string        `json:"sql_query"`
}

// ChartArtifact is attached to chart tool results.
type ChartArtifact struct {
	ChartType     string          `json:"chart_type"`
	ChartMetadata json.RawMessage `json:"chart_metadata"`
	Data          *models.Table   `json:"data"`
}

// ArtifactKind classifies a tool by the artifact its messages carry.
type ArtifactKind int

const (
	ArtifactNone ArtifactKind = iota
	ArtifactDataset
	ArtifactTable
	ArtifactChart
)

// ArtifactOf returns the artifact kind of the named tool.
func ArtifactOf(toolName string) ArtifactKind {
	switch {
	case toolName == SelectDatasetTool:
		return ArtifactDataset
	case toolName == ExecuteSQLTool:
		return ArtifactTable
	case toolName == GenerateChartTool,
		strings.HasPrefix(toolName, "generate_") && strings.HasSuffix(toolName, "_chart_metadata"):
		return ArtifactChart
	}
	return ArtifactNone
}
