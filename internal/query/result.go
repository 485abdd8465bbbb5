package query

import (
	"fmt"

	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
)

// MaxDisplayRows is the largest result shown in full in the transcript.
const MaxDisplayRows = 50

// GeneratedContent is the transcript text for a synthesized query.
func GeneratedContent(q *models.SQLQuery) string {
	return fmt.Sprintf("Generated SQL:\n\n```sql\n%s\n```\n\nExplanation:\n\n%s", q.Query, q.Explanation)
}

// ResultContent is the transcript text for an executed query. Results above
// MaxDisplayRows are replaced by an instruction to aggregate or plot.
func ResultContent(t *models.Table, explanation string) string {
	if t.Len() > MaxDisplayRows {
		return fmt.Sprintf("Returned data had %d rows. Either summarize the data by "+
			"re-generating the SQL with `group by` or `distinct`, or create a plot using "+
			"the full data frame that is saved as an artifact.", t.Len())
	}
	return "Data returned:\n\n" + t.Markdown() + "\n\nExplanation: " + explanation
}

// ErrorContent is the transcript text for a failed execution.
func ErrorContent(err error) string {
	return fmt.Sprintf("Error while executing SQL: %v", err)
}
