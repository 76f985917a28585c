package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	appctx "seqnum/internal/core/context"
	"seqnum/internal/core/entity"
	"seqnum/internal/core/id"
	"seqnum/internal/core/sequence"
	"seqnum/internal/domain/records"
)

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditTable stores one row per assigned sequence number.
const AuditTable = "sys_sequence_audit"

// AuditDDL creates the audit table when it does not exist.
const AuditDDL = `
CREATE TABLE IF NOT EXISTS ` + AuditTable + ` (
	id uuid PRIMARY KEY,
	table_name text NOT NULL,
	record_id uuid NOT NULL,
	column_name text NOT NULL,
	value bigint NOT NULL,
	scope jsonb,
	snapshot jsonb,
	snapshot_compressed bytea,
	compression_algo text NOT NULL DEFAULT 'none',
	user_id text NOT NULL DEFAULT '',
	created_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ` + AuditTable + `_record_idx ON ` + AuditTable + ` (table_name, record_id, created_at DESC);
`

// AuditEntry records a number handed out by the write path.
type AuditEntry struct {
	ID                 id.ID           `db:"id"`
	TableName          string          `db:"table_name"`
	RecordID           id.ID           `db:"record_id"`
	ColumnName         string          `db:"column_name"`
	Value              int64           `db:"value"`
	Scope              json.RawMessage `db:"scope"`
	Snapshot           json.RawMessage `db:"snapshot"`
	SnapshotCompressed []byte          `db:"snapshot_compressed"`
	CompressionAlgo    CompressionAlgo `db:"compression_algo"`
	UserID             string          `db:"user_id"`
	CreatedAt          time.Time       `db:"created_at"`
}

// AuditService writes assignment entries inside the write transaction.
type AuditService struct {
	txm               QuerierProvider
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes, default 10KB
}

var _ records.AuditSink = (*AuditService)(nil)

// NewAuditService creates a new audit service.
func NewAuditService(txm QuerierProvider) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditService{
		txm:               txm,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// EnsureTable creates the audit table.
func (s *AuditService) EnsureTable(ctx context.Context) error {
	if _, err := s.txm.GetQuerier(ctx).Exec(ctx, AuditDDL); err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	return nil
}

// RecordAssignments implements records.AuditSink.
func (s *AuditService) RecordAssignments(ctx context.Context, schema *records.Schema, row *entity.Row, columns []string) error {
	snapshot, err := json.Marshal(row.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	for _, col := range columns {
		spec, ok := schema.Sequences.Spec(col)
		if !ok {
			continue
		}
		value, ok := sequence.Int64(row.Get(col))
		if !ok {
			continue
		}

		scope := make(map[string]any, len(spec.Scope))
		for _, c := range spec.Scope {
			scope[c] = row.Get(c)
		}
		scopeJSON, err := json.Marshal(scope)
		if err != nil {
			return fmt.Errorf("marshal scope: %w", err)
		}

		err = s.Log(ctx, AuditEntry{
			TableName:  schema.Name,
			RecordID:   row.ID,
			ColumnName: col,
			Value:      value,
			Scope:      scopeJSON,
			Snapshot:   snapshot,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Log records an audit entry.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	if entry.UserID == "" {
		entry.UserID = appctx.GetUserID(ctx)
	}
	if id.IsNil(entry.ID) {
		entry.ID = id.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.compress(&entry)

	sql := `
		INSERT INTO ` + AuditTable + ` (
			id, table_name, record_id, column_name, value, scope,
			snapshot, snapshot_compressed, compression_algo, user_id,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.txm.GetQuerier(ctx).Exec(ctx, sql,
		entry.ID, entry.TableName, entry.RecordID, entry.ColumnName, entry.Value, entry.Scope,
		entry.Snapshot, entry.SnapshotCompressed, entry.CompressionAlgo, entry.UserID,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// compress moves large snapshots into the zstd column.
func (s *AuditService) compress(entry *AuditEntry) {
	entry.CompressionAlgo = CompressionNone
	if len(entry.Snapshot) > s.compressThreshold {
		entry.SnapshotCompressed = s.encoder.EncodeAll(entry.Snapshot, nil)
		entry.Snapshot = nil
		entry.CompressionAlgo = CompressionZstd
	}
}

// decompress restores a snapshot written by compress.
func (s *AuditService) decompress(entry *AuditEntry) error {
	if entry.CompressionAlgo != CompressionZstd || len(entry.SnapshotCompressed) == 0 {
		return nil
	}
	raw, err := s.decoder.DecodeAll(entry.SnapshotCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress snapshot: %w", err)
	}
	entry.Snapshot = raw
	entry.SnapshotCompressed = nil
	return nil
}

// History retrieves the numbers assigned to a record, newest first.
func (s *AuditService) History(ctx context.Context, table string, recordID id.ID, limit int) ([]AuditEntry, error) {
	sql := `
		SELECT id, table_name, record_id, column_name, value, scope,
			   snapshot, snapshot_compressed, compression_algo, user_id,
			   created_at
		FROM ` + AuditTable + `
		WHERE table_name = $1 AND record_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := s.txm.GetQuerier(ctx).Query(ctx, sql, table, recordID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		err := rows.Scan(
			&e.ID, &e.TableName, &e.RecordID, &e.ColumnName, &e.Value, &e.Scope,
			&e.Snapshot, &e.SnapshotCompressed, &e.CompressionAlgo, &e.UserID,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if err := s.decompress(&e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
