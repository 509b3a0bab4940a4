package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/animus-labs/freezer/internal/domain"
)

const (
	ActionSucceeded = "freeze.succeeded"
	ActionFailed    = "freeze.failed"
)

// FreezeEvent maps one processed directive root onto a ledger event.
func FreezeEvent(runID, actor string, at time.Time, outcome domain.Outcome) Event {
	action := ActionSucceeded
	if !outcome.Succeeded() {
		action = ActionFailed
	}
	payload := map[string]any{
		"directive": outcome.Directive,
		"tags":      map[string]string(outcome.Tags.Clone()),
		"processed": len(outcome.Result.Processed),
		"failed":    outcome.Result.Failed,
	}
	if outcome.Err != nil {
		payload["error"] = outcome.Err.Error()
	}
	return Event{
		OccurredAt: at,
		RunID:      runID,
		Actor:      actor,
		Action:     action,
		Root:       outcome.Root,
		Payload:    payload,
	}
}

// Ledger records outcomes into a database opened with the pgx driver.
type Ledger struct {
	DB    *sql.DB
	Actor string
	Now   func() time.Time
}

func (l *Ledger) Record(ctx context.Context, runID string, outcome domain.Outcome) error {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := Append(ctx, tx, FreezeEvent(runID, l.Actor, now().UTC(), outcome)); err != nil {
		return err
	}
	return tx.Commit()
}

// Verify walks the whole ledger and reports the first broken link.
func (l *Ledger) Verify(ctx context.Context) (int, error) {
	rows, err := ReadAll(ctx, l.DB)
	if err != nil {
		return 0, err
	}
	return len(rows), VerifyChain(rows)
}
