package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaStatements(t *testing.T) {
	stmts := schemaStatements(Schema)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS verification_runs")
	assert.Contains(t, stmts[1], "CREATE TABLE IF NOT EXISTS console_messages")
	assert.Contains(t, stmts[1], "REFERENCES verification_runs (id) ON DELETE CASCADE")
}

func TestSchemaStatementsSkipsBlanks(t *testing.T) {
	assert.Equal(t, []string{"SELECT 1", "SELECT 2"}, schemaStatements("SELECT 1;\n\n ;SELECT 2;\n"))
	assert.Empty(t, schemaStatements("  \n"))
}
