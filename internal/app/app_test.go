package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqnum/internal/infrastructure/storage"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sequences.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNew_Memory(t *testing.T) {
	ctx := context.Background()
	path := writeConfig(t, `
tables:
  - name: tickets
    columns: [title]
    sequences:
      - column: ticket_no
        start_at: 1000
`)

	a, err := New(ctx, Config{SequencesFile: path, Storage: storage.DefaultConfig()})
	require.NoError(t, err)
	defer a.Close()

	row, err := a.Service.Create(ctx, "tickets", map[string]any{"title": "first"})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), row.Get("ticket_no"))
}

func TestNew_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, Config{SequencesFile: filepath.Join(t.TempDir(), "missing.yaml"), Storage: storage.DefaultConfig()})
	assert.Error(t, err)

	path := writeConfig(t, "tables:\n  - name: t\n")
	cfg := storage.DefaultConfig()
	cfg.Driver = "oracle"
	_, err = New(ctx, Config{SequencesFile: path, Storage: cfg})
	assert.Error(t, err)
}
