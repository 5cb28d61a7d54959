package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func compile(t *testing.T, format string, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetArgs(append(args, "--now", "2024-06-01T00:00:00Z"))
	return buf, cmd.Execute()
}

func TestCompile_Golden(t *testing.T) {
	tests := []struct {
		doc     string
		dialect string
		golden  string
	}{
		{"testdata/find.yaml", "sqlite", "sqlite_find"},
		{"testdata/find.yaml", "postgres", "postgres_find"},
		{"testdata/find.yaml", "mysql", "mysql_find"},
		{"testdata/update.yaml", "sqlite", "sqlite_update"},
		{"testdata/update.yaml", "postgres", "postgres_update"},
	}
	for _, tt := range tests {
		t.Run(tt.golden, func(t *testing.T) {
			buf, err := compile(t, "text", tt.doc, "--dialect", tt.dialect)
			require.NoError(t, err)
			golden(t).Assert(t, tt.golden, buf.Bytes())
		})
	}
}

func TestCompile_SoftDeleteColumnDisabled(t *testing.T) {
	buf, err := compile(t, "json", "testdata/find.yaml", "--soft-delete-column", "")
	require.NoError(t, err)

	var resp struct {
		Data CompileResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Len(t, resp.Data.Statements, 1)
	st := resp.Data.Statements[0]
	assert.NotContains(t, st.SQL, "is_deleted")
	assert.Equal(t, []any{"active", float64(18)}, st.Args)
}

func TestCompile_MongoJSON(t *testing.T) {
	buf, err := compile(t, "json", "testdata/update.yaml", "--dialect", "mongodb")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   CompileResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "mongodb", resp.Data.Dialect)
	assert.Equal(t, "users", resp.Data.Table)

	steps := make([]string, len(resp.Data.Statements))
	for i, st := range resp.Data.Statements {
		steps[i] = st.Step
		assert.Empty(t, st.SQL)
	}
	assert.Equal(t, []string{"keys", "update", "fetch"}, steps)

	var update map[string]any
	require.NoError(t, json.Unmarshal(resp.Data.Statements[1].Command, &update))
	assert.Equal(t, "users", update["update"])
	assert.Contains(t, string(resp.Data.Statements[1].Command), "$set")
	assert.Contains(t, string(resp.Data.Statements[1].Command), KeysPlaceholder)
}

func TestCompile_MongoFind(t *testing.T) {
	buf, err := compile(t, "text", "testdata/find.yaml", "--dialect", "mongodb")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "-- find\n")
	assert.Contains(t, buf.String(), `"find":"users"`)
	assert.Contains(t, buf.String(), `"skip":`)
	assert.Contains(t, buf.String(), `"limit":`)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		exit int
		want string
	}{
		{"unknown dialect", []string{"testdata/find.yaml", "--dialect", "oracle"}, ExitCommandError, "unknown SQL dialect"},
		{"bad now", []string{"testdata/find.yaml", "--now", "yesterday"}, ExitCommandError, "invalid --now"},
		{"no entity", []string{"testdata/noentity.yaml"}, ExitCommandError, "has no entity"},
		{"invalid document", []string{"testdata/invalid.yaml"}, ExitFailure, "invalid document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			cmd := NewCompileCommand(&RootOptions{Format: "text"})
			cmd.SetOut(buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			require.Error(t, err)
			assert.Equal(t, tt.exit, GetExitCode(err))
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}
