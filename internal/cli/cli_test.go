package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqnum/internal/domain/auth"
	"seqnum/internal/infrastructure/storage/sqlite"
)

const sequencesYAML = `
tables:
  - name: answers
    columns: [body]
    sequences:
      - scope: [question_id]
`

func executeCommand(args ...string) (stdout string, err error) {
	root := NewRootCmd()
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), err
}

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected ExitError, got %v", err)
	return exitErr.Code
}

// seedDB creates a file database with the answers table and the given numbers for q1.
func seedDB(t *testing.T, numbers ...int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seq.db")
	db, err := sqlite.Open(context.Background(), sqlite.DefaultConfig(path))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE answers (id TEXT PRIMARY KEY, question_id TEXT, number INTEGER, body TEXT)`)
	require.NoError(t, err)
	for i, n := range numbers {
		_, err = db.Exec(`INSERT INTO answers (id, question_id, number) VALUES (?, 'q1', ?)`,
			"00000000-0000-7000-8000-00000000000"+string(rune('0'+i)), n)
		require.NoError(t, err)
	}
	return path
}

func TestValidate(t *testing.T) {
	path := writeTestFile(t, "sequences.yaml", sequencesYAML)

	out, err := executeCommand("validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "answers")
	assert.Contains(t, out, "number per question_id")
	assert.Contains(t, out, "ok: 1 table(s)")

	out, err = executeCommand("validate", "--format", "json", path)
	require.NoError(t, err)
	var summary []tableSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	require.Len(t, summary, 1)
	assert.Equal(t, "number", summary[0].Sequences[0].Column)
}

func TestValidate_Errors(t *testing.T) {
	_, err := executeCommand("validate", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, exitFileNotFound, exitCode(t, err))

	bad := writeTestFile(t, "bad.yaml", "tables:\n  - name: a\n    sequences:\n      - column: n\n      - column: n\n")
	_, err = executeCommand("validate", bad)
	assert.Equal(t, exitValidation, exitCode(t, err))
}

func TestVerify(t *testing.T) {
	cfg := writeTestFile(t, "sequences.yaml", sequencesYAML)

	clean := seedDB(t, 1, 2, 3)
	out, err := executeCommand("verify", "--config", cfg, "--driver", "sqlite", "--dsn", clean)
	require.NoError(t, err)
	assert.Contains(t, out, "ok: no duplicates")

	dirty := seedDB(t, 1, 2, 2)
	out, err = executeCommand("verify", "answers", "--config", cfg, "--driver", "sqlite", "--dsn", dirty)
	assert.Equal(t, exitViolations, exitCode(t, err))
	assert.Contains(t, out, "answers.number = 2 used 2 times (question_id=q1)")
}

func TestVerify_RequiresConfig(t *testing.T) {
	t.Setenv("SEQUENCES_CONFIG", "")
	_, err := executeCommand("verify", "--config", "")
	assert.Equal(t, exitValidation, exitCode(t, err))
}

func TestHistory_Errors(t *testing.T) {
	cfg := writeTestFile(t, "sequences.yaml", sequencesYAML)
	dsn := seedDB(t, 1)
	rowID := "00000000-0000-7000-8000-000000000000"

	_, err := executeCommand("history", "answers", "not-an-id", "--config", cfg, "--driver", "sqlite", "--dsn", dsn)
	assert.Equal(t, exitValidation, exitCode(t, err))

	_, err = executeCommand("history", "questions", rowID, "--config", cfg, "--driver", "sqlite", "--dsn", dsn)
	assert.Equal(t, exitValidation, exitCode(t, err))

	_, err = executeCommand("history", "answers", rowID, "--config", cfg, "--driver", "sqlite", "--dsn", dsn)
	assert.Equal(t, exitValidation, exitCode(t, err))
	assert.Contains(t, err.Error(), "postgres")
}

func TestNext(t *testing.T) {
	cfg := writeTestFile(t, "sequences.yaml", sequencesYAML)
	db := seedDB(t, 1, 2, 4)

	out, err := executeCommand("next", "answers", "number", "question_id=q1",
		"--config", cfg, "--driver", "sqlite", "--dsn", db)
	require.NoError(t, err)
	assert.Equal(t, "5", strings.TrimSpace(out))

	out, err = executeCommand("next", "answers", "number", "question_id=q2",
		"--config", cfg, "--driver", "sqlite", "--dsn", db)
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(out))

	_, err = executeCommand("next", "answers", "number", "question_id",
		"--config", cfg, "--driver", "sqlite", "--dsn", db)
	assert.Equal(t, exitValidation, exitCode(t, err))

	_, err = executeCommand("next", "answers", "position",
		"--config", cfg, "--driver", "sqlite", "--dsn", db)
	assert.Equal(t, exitRuntime, exitCode(t, err))
}

func TestToken(t *testing.T) {
	out, err := executeCommand("token", "u1", "--secret", "s3cret", "--role", "writer")
	require.NoError(t, err)

	user, err := auth.NewJWTService(auth.DefaultJWTConfig("s3cret")).ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "u1", user.UserID)
	assert.Equal(t, []string{"writer"}, user.Roles)

	t.Setenv("JWT_SECRET", "")
	_, err = executeCommand("token", "u1", "--secret", "")
	assert.Equal(t, exitValidation, exitCode(t, err))
}
