// Package query turns questions into SQL against a dataset and runs it.
//
// Synthesis asks the model for named clauses (Parts) instead of a free-form
// statement; Assemble joins them deterministically. Execution goes through a
// contracts.QueryEngine, normally the SQLiteEngine in this package.
package query

import (
	"strings"

	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
)

// Parts is the structured decomposition of a query returned by the model.
type Parts struct {
	Select      string  `json:"select"`
	Where       string  `json:"where"`
	GroupBy     *string `json:"group_by"`
	OrderBy     *string `json:"order_by"`
	Limit       *string `json:"limit"`
	Explanation string  `json:"explanation"`
}

// PartsSchema is the JSON schema sent as the structured output format.
var PartsSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"select":      map[string]interface{}{"type": "string", "description": "The SQL select statement"},
		"where":       map[string]interface{}{"type": "string", "description": "The SQL where statement"},
		"group_by":    map[string]interface{}{"type": []string{"string", "null"}, "description": "The SQL group by statement"},
		"order_by":    map[string]interface{}{"type": []string{"string", "null"}, "description": "The SQL order by statement"},
		"limit":       map[string]interface{}{"type": []string{"string", "null"}, "description": "The SQL limit statement"},
		"explanation": map[string]interface{}{"type": "string", "description": "An explanation of why the model generated this query"},
	},
	"required":             []string{"select", "where", "group_by", "order_by", "limit", "explanation"},
	"additionalProperties": false,
}

// Assemble builds the statement
//
//	SELECT {select} FROM '{href}' WHERE {where} [GROUP BY ..] [ORDER BY ..] [LIMIT ..]
//
// Optional clauses are omitted when null or blank. A blank where clause
// becomes a tautology so the statement stays valid.
func (p Parts) Assemble(href string) models.SQLQuery {
	where := strings.TrimSpace(p.Where)
	if where == "" {
		where = "1 = 1"
	}
	parts := []string{"SELECT " + strings.TrimSpace(p.Select) + " FROM '" + href + "' WHERE " + where}
	if v := optional(p.GroupBy); v != "" {
		parts = append(parts, "GROUP BY "+v)
	}
	if v := optional(p.OrderBy); v != "" {
		parts = append(parts, "ORDER BY "+v)
	}
	if v := optional(p.Limit); v != "" {
		parts = append(parts, "LIMIT "+v)
	}
	return models.SQLQuery{Query: strings.Join(parts, " "), Explanation: p.Explanation}
}

func optional(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
