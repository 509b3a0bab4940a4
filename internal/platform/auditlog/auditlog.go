// Package auditlog appends freeze run outcomes to a Postgres ledger. Rows form
// a hash chain: each integrity hash covers the event and the previous hash.
package auditlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Event struct {
	OccurredAt time.Time
	RunID      string
	Actor      string
	Action     string
	Root       string
	Payload    any
}

// Stored is a ledger row as read back for verification.
type Stored struct {
	ID          int64
	OccurredAt  time.Time
	RunID       string
	Actor       string
	Action      string
	Root        string
	PayloadJSON []byte
	PrevSHA256  string
	SHA256      string
}

type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ChainMismatchError points at the first row whose hash does not verify.
type ChainMismatchError struct {
	ID     int64
	Reason string
}

func (e *ChainMismatchError) Error() string {
	return fmt.Sprintf("ledger row %d: %s", e.ID, e.Reason)
}

const schemaSQL = `CREATE TABLE IF NOT EXISTS freeze_events (
	event_id BIGSERIAL PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	run_id TEXT NOT NULL,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	root TEXT NOT NULL,
	payload JSONB NOT NULL,
	prev_sha256 TEXT NOT NULL,
	integrity_sha256 TEXT NOT NULL
)`

// chainLock serializes appenders so two writers never link to the same tail.
const chainLock = 7_302_117

func EnsureSchema(ctx context.Context, db Execer) error {
	if db == nil {
		return errors.New("execer is required")
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create freeze_events: %w", err)
	}
	return nil
}

func (e Event) Validate() error {
	required := []struct{ name, value string }{
		{"RunID", e.RunID},
		{"Actor", e.Actor},
		{"Action", e.Action},
		{"Root", e.Root},
	}
	if e.OccurredAt.IsZero() {
		return errors.New("OccurredAt is required")
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%s is required", f.name)
		}
	}
	return nil
}

// Append links event to the current chain tail inside tx. The caller owns
// the transaction.
func Append(ctx context.Context, tx *sql.Tx, event Event) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return 0, err
	}
	payloadJSON, err := encodePayload(event.Payload)
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, chainLock); err != nil {
		return 0, fmt.Errorf("lock ledger: %w", err)
	}
	prev, err := tail(ctx, tx)
	if err != nil {
		return 0, err
	}
	sum, err := ChainHash(prev, event, payloadJSON)
	if err != nil {
		return 0, err
	}

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO freeze_events (
			occurred_at, run_id, actor, action, root, payload, prev_sha256, integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING event_id`,
		event.OccurredAt.UTC(),
		strings.TrimSpace(event.RunID),
		strings.TrimSpace(event.Actor),
		strings.TrimSpace(event.Action),
		strings.TrimSpace(event.Root),
		payloadJSON,
		prev,
		sum,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert freeze event: %w", err)
	}
	return id, nil
}

func tail(ctx context.Context, q QueryRower) (string, error) {
	var prev string
	err := q.QueryRowContext(ctx,
		`SELECT integrity_sha256 FROM freeze_events ORDER BY event_id DESC LIMIT 1`,
	).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read ledger tail: %w", err)
	}
	return prev, nil
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return raw, nil
}

// ChainHash is the integrity hash of event given the previous row's hash.
// The first row links to the empty string.
func ChainHash(prev string, event Event, payloadJSON []byte) (string, error) {
	var payload json.RawMessage
	if len(payloadJSON) > 0 {
		// Postgres JSONB reorders keys, so hash the compacted canonical form.
		var v any
		if err := json.Unmarshal(payloadJSON, &v); err != nil {
			return "", fmt.Errorf("decode payload: %w", err)
		}
		canon, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode payload: %w", err)
		}
		payload = canon
	}

	blob, err := json.Marshal(struct {
		Prev       string          `json:"prev"`
		OccurredAt time.Time       `json:"occurred_at"`
		RunID      string          `json:"run_id"`
		Actor      string          `json:"actor"`
		Action     string          `json:"action"`
		Root       string          `json:"root"`
		Payload    json.RawMessage `json:"payload"`
	}{
		Prev:       prev,
		OccurredAt: event.OccurredAt.UTC().Truncate(time.Microsecond),
		RunID:      strings.TrimSpace(event.RunID),
		Actor:      strings.TrimSpace(event.Actor),
		Action:     strings.TrimSpace(event.Action),
		Root:       strings.TrimSpace(event.Root),
		Payload:    payload,
	})
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChain checks rows, ordered by id, against their stored hashes.
func VerifyChain(rows []Stored) error {
	prev := ""
	for _, row := range rows {
		if row.PrevSHA256 != prev {
			return &ChainMismatchError{ID: row.ID, Reason: "previous hash does not match chain"}
		}
		want, err := ChainHash(prev, Event{
			OccurredAt: row.OccurredAt,
			RunID:      row.RunID,
			Actor:      row.Actor,
			Action:     row.Action,
			Root:       row.Root,
		}, row.PayloadJSON)
		if err != nil {
			return &ChainMismatchError{ID: row.ID, Reason: err.Error()}
		}
		if want != row.SHA256 {
			return &ChainMismatchError{ID: row.ID, Reason: "integrity hash mismatch"}
		}
		prev = row.SHA256
	}
	return nil
}

// ReadAll loads the ledger in append order.
func ReadAll(ctx context.Context, db *sql.DB) ([]Stored, error) {
	rows, err := db.QueryContext(ctx, `SELECT
		event_id, occurred_at, run_id, actor, action, root, payload, prev_sha256, integrity_sha256
		FROM freeze_events ORDER BY event_id`)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	defer rows.Close()

	var out []Stored
	for rows.Next() {
		var s Stored
		if err := rows.Scan(&s.ID, &s.OccurredAt, &s.RunID, &s.Actor, &s.Action, &s.Root,
			&s.PayloadJSON, &s.PrevSHA256, &s.SHA256); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
