package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/store"
	"github.com/roach88/storekit/internal/testutil"
)

// seedDB creates a SQLite database with three users, one of them soft
// deleted, and points STOREKIT_DSN at it.
func seedDB(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "query.db")

	s, err := store.Open(ctx, "sqlite", path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate(ctx, testutil.UsersDDL))

	users := backend.Model{Name: "users", Table: "users"}
	_, err = s.CreateMany(ctx, users, []backend.Record{
		{"id": "u1", "name": "Ann", "age": 30, "status": "active"},
		{"id": "u2", "name": "Bob", "age": 25, "status": "active"},
		{"id": "u3", "name": "Cid", "age": 40, "status": "pending", "is_deleted": true},
	})
	require.NoError(t, err)

	t.Setenv("STOREKIT_DRIVER", "sqlite")
	t.Setenv("STOREKIT_DSN", path)
	t.Setenv("STOREKIT_LOG_LEVEL", "error")
}

func writeDoc(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func query(t *testing.T, format, body string, flags ...string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewQueryCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetArgs(append([]string{writeDoc(t, body)}, flags...))
	return buf, cmd.Execute()
}

func rowsOf(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var resp struct {
		Status string           `json:"status"`
		Data   []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func valueOf(t *testing.T, buf *bytes.Buffer) any {
	t.Helper()
	var resp struct {
		Data QueryValue `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	return resp.Data.Value
}

func TestQuery_FindMany(t *testing.T) {
	seedDB(t)

	buf, err := query(t, "json", "entity: users\nselect: [id, name]\norder: [{field: age, direction: desc}]\n")
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{
		{"id": "u1", "name": "Ann"},
		{"id": "u2", "name": "Bob"},
	}, rowsOf(t, buf))

	buf, err = query(t, "json", "entity: users\nselect: [id]\nwith_deleted: true\n")
	require.NoError(t, err)
	assert.Len(t, rowsOf(t, buf), 3)
}

func TestQuery_FindManyText(t *testing.T) {
	seedDB(t)

	buf, err := query(t, "text", "entity: users\nselect: [id, name]\nwhere: {field: name, eq: Bob}\n")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Id")
	assert.Contains(t, buf.String(), "Name")
	assert.Contains(t, buf.String(), "Bob")
	assert.Contains(t, buf.String(), "(1 rows)")
}

func TestQuery_FindOne(t *testing.T) {
	seedDB(t)

	buf, err := query(t, "json", "entity: users\noperation: findOne\nselect: [name]\nwhere: {field: age, op: GT, value: 26}\n")
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"name": "Ann"}}, rowsOf(t, buf))

	buf, err = query(t, "json", "entity: users\noperation: findOne\nwhere: {field: age, op: GT, value: 99}\n")
	require.NoError(t, err)
	assert.Empty(t, rowsOf(t, buf))
}

func TestQuery_Scalars(t *testing.T) {
	seedDB(t)

	tests := []struct {
		name string
		doc  string
		want any
	}{
		{"count", "entity: users\noperation: count\n", float64(2)},
		{"count with deleted", "entity: users\noperation: count\nwith_deleted: true\n", float64(3)},
		{"exists", "entity: users\noperation: exists\nwhere: {field: status, eq: pending}\n", false},
		{"sum", "entity: users\noperation: sum\nfield: age\n", float64(55)},
		{"average", "entity: users\noperation: average\nfield: age\n", 27.5},
		{"maximum with deleted", "entity: users\noperation: maximum\nfield: age\nwith_deleted: true\n", float64(40)},
		{"minimum of nothing", "entity: users\noperation: minimum\nfield: age\nwhere: {field: age, op: GT, value: 99}\n", nil},
		{"distinct", "entity: users\noperation: distinct\nfield: status\nwith_deleted: true\n", []any{"active", "pending"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := query(t, "json", tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, valueOf(t, buf))
		})
	}
}

func TestQuery_Aggregate(t *testing.T) {
	seedDB(t)

	doc := `entity: users
operation: aggregate
with_deleted: true
pipeline:
  - group:
      by: [status]
      functions: [{func: COUNT, alias: n}]
  - order: [{field: n, direction: desc}]
`
	buf, err := query(t, "json", doc)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{
		{"status": "active", "n": float64(2)},
		{"status": "pending", "n": float64(1)},
	}, rowsOf(t, buf))
}

func TestQuery_UpdateDryRun(t *testing.T) {
	seedDB(t)

	doc := "entity: users\noperation: updateMany\nwhere: {field: name, eq: Ann}\nupdate:\n  deltas: [{op: INC, field: age, amount: 1}]\n"
	buf, err := query(t, "json", doc, "--dry-run")
	require.NoError(t, err)
	rows := rowsOf(t, buf)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(31), rows[0]["age"])

	buf, err = query(t, "json", "entity: users\noperation: maximum\nfield: age\n")
	require.NoError(t, err)
	assert.Equal(t, float64(30), valueOf(t, buf), "dry run rolled back")

	_, err = query(t, "json", doc)
	require.NoError(t, err)
	buf, err = query(t, "json", "entity: users\noperation: maximum\nfield: age\n")
	require.NoError(t, err)
	assert.Equal(t, float64(31), valueOf(t, buf))
}

func TestQuery_SoftDeleteAndRestore(t *testing.T) {
	seedDB(t)

	_, err := query(t, "json", "entity: users\noperation: softDeleteMany\nwhere: {field: name, eq: Bob}\n")
	require.NoError(t, err)

	buf, err := query(t, "json", "entity: users\noperation: count\n")
	require.NoError(t, err)
	assert.Equal(t, float64(1), valueOf(t, buf))

	buf, err = query(t, "json", "entity: users\noperation: restoreMany\n")
	require.NoError(t, err)
	assert.Len(t, rowsOf(t, buf), 2)

	buf, err = query(t, "json", "entity: users\noperation: restoreMany\n")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "restoreMany", resp.Error.Op)
}

func TestQuery_DeleteMany(t *testing.T) {
	seedDB(t)

	buf, err := query(t, "json", "entity: users\noperation: deleteMany\nwhere: {field: status, eq: pending}\n")
	require.NoError(t, err)
	rows := rowsOf(t, buf)
	require.Len(t, rows, 1)
	assert.Equal(t, "u3", rows[0]["id"])

	buf, err = query(t, "json", "entity: users\noperation: count\nwith_deleted: true\n")
	require.NoError(t, err)
	assert.Equal(t, float64(2), valueOf(t, buf))
}

func TestQuery_Errors(t *testing.T) {
	t.Run("bad config", func(t *testing.T) {
		t.Setenv("STOREKIT_DRIVER", "oracle")
		_, err := query(t, "text", "entity: users\n")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), ErrCodeConfig)
	})

	t.Run("unreachable backend", func(t *testing.T) {
		t.Setenv("STOREKIT_DRIVER", "sqlite")
		t.Setenv("STOREKIT_DSN", filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
		_, err := query(t, "text", "entity: users\n")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), ErrCodeConnect)
	})

	t.Run("missing table", func(t *testing.T) {
		seedDB(t)
		buf, err := query(t, "text", "entity: orders\n")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, buf.String(), "Error [BACKEND] findMany")
	})
}
