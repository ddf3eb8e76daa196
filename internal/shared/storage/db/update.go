package db

import (
	"fmt"
	"strings"
)

// Assignment is one column = value pair of an UPDATE statement.
type Assignment struct {
	Column string
	Value  any
}

// SetClause renders assignments as "col = $n, ..." with placeholders
// numbered from start. Columns come from code, never from request input.
func SetClause(assignments []Assignment, start int) (string, []any) {
	parts := make([]string, 0, len(assignments))
	args := make([]any, 0, len(assignments))
	for i, a := range assignments {
		parts = append(parts, fmt.Sprintf("%s = $%d", a.Column, start+i))
		args = append(args, a.Value)
	}
	return strings.Join(parts, ", "), args
}
