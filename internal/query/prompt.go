package query

import (
	"fmt"
	"strings"

	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
)

// Prompt builds the system prompt for SQL synthesis.
func Prompt(schemaTable, headTable string, props models.Properties) string {
	var b strings.Builder
	fmt.Fprintf(&b, `I want you to act like a data scientist.

You will generate:

   - A SQL select statement
   - A SQL where statement
   - An optional SQL group by statement
   - An optional SQL order by statement
   - An optional SQL limit statement
   - A brief explanation of why you chose what you did, which should include a
     description of each output column

The SQL should be valid SQLite SQL.

The dataset schema that the SQL will be used against is:

%s

The first few rows of the table look like:

%s

Other instructions:

    - Whenever summing over numeric values, you must include a `+"`where`"+` clause
      that removes all `+"`nan`"+` values using the `+"`isnan`"+` function

`, schemaTable, headTable)

	for _, col := range props.TableColumns {
		if len(col.Values) == 0 {
			continue
		}
		fmt.Fprintf(&b, "The `%s` column has the following values:\n\n", col.Name)
		values := make([]string, len(col.Values))
		for i, v := range col.Values {
			values[i] = "- " + models.FormatValue(v)
		}
		b.WriteString(strings.Join(values, "\n"))
		b.WriteString("\n\n")
	}

	if len(props.SQLInstructions) > 0 {
		b.WriteString("Additional instructions:\n\n")
		lines := make([]string, len(props.SQLInstructions))
		for i, s := range props.SQLInstructions {
			lines[i] = "- " + s
		}
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n\n")
	}
	return b.String()
}
