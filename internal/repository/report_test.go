package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func TestReportSetClause_OnlyIncludesSuppliedFields(t *testing.T) {
	cols, args := reportSetClause(ReportFields{
		Title:   strPtr("New Title"),
		Concept: floatPtr(80.5),
	})
	require.Equal(t, []string{"title", "concept"}, cols)
	require.Equal(t, []any{"New Title", 80.5}, args)
}

func TestReportSetClause_EmptyFieldsProducesNoColumns(t *testing.T) {
	cols, args := reportSetClause(ReportFields{})
	require.Empty(t, cols)
	require.Empty(t, args)
}

func TestJoinAssignments_BuildsPositionalPlaceholders(t *testing.T) {
	got := joinAssignments([]string{"a", "b", "c"})
	require.Equal(t, "a = $1, b = $2, c = $3", got)
}
