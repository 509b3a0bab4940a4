package engine

import (
	"context"
	"errors"
	"fmt"
	"path"
	"unicode/utf8"

	"github.com/animus-labs/freezer/internal/directive"
	"github.com/animus-labs/freezer/internal/domain"
	"github.com/animus-labs/freezer/internal/notify"
)

var ErrDirectiveGone = errors.New("directive disappeared before processing")

// PassReport lists the outcome of every directive root handled by one pass.
type PassReport struct {
	RunID    string
	Outcomes []domain.Outcome
}

func (r PassReport) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			n++
		}
	}
	return n
}

// RunPass discovers directive roots, applies each one, removes its directive
// and reports the outcome. Per-root failures are reported, not returned; the
// error is reserved for a namespace that cannot be scanned.
func (e *Engine) RunPass(ctx context.Context) (PassReport, error) {
	report := PassReport{RunID: e.newRunID()}
	logger := e.logger.With("run_id", report.RunID)

	roots, err := directive.Discover(e.fs, e.root, func(dir string, err error) {
		logger.Warn("directory skipped during discovery", "dir", dir, "error", err)
	})
	if err != nil {
		return report, fmt.Errorf("discover directives: %w", err)
	}
	logger.Info("directive roots discovered", "root", e.root, "count", len(roots))

	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome := e.freezeRoot(ctx, root)
		report.Outcomes = append(report.Outcomes, outcome)

		attrs := []any{
			"dir", root,
			"tags", outcome.Tags.String(),
			"processed", len(outcome.Result.Processed),
			"failed", len(outcome.Result.Failed),
		}
		if outcome.Succeeded() {
			logger.Info("freeze succeeded", attrs...)
		} else {
			logger.Warn("freeze failed", append(attrs, "error", outcome.Err)...)
		}

		if err := e.notifier.Notify(ctx, e.Message(outcome)); err != nil {
			logger.Error("notify", "dir", root, "error", err)
		}
		if e.ledger != nil {
			if err := e.ledger.Record(ctx, report.RunID, outcome); err != nil {
				logger.Error("record ledger entry", "dir", root, "error", err)
			}
		}
	}
	return report, nil
}

func (e *Engine) freezeRoot(ctx context.Context, root string) domain.Outcome {
	outcome := domain.Outcome{Root: root, Result: domain.NewRunResult()}

	name, found, err := directive.Find(e.fs, root)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	if !found {
		outcome.Err = ErrDirectiveGone
		return outcome
	}
	outcome.Directive = name

	tags, err := directive.Parse(name)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Tags = tags

	outcome.Result = e.ApplyRule(ctx, root, root, tags)
	if err := e.fs.Remove(path.Join(root, name)); err != nil {
		outcome.Err = fmt.Errorf("remove directive: %w", err)
	}
	return outcome
}

// Message renders the notification text for one root. Only the path is
// shortened, so the text fits notify.MaxLength and keeps its status word.
func (e *Engine) Message(outcome domain.Outcome) string {
	const head = "Freezing path "
	tail := " Succeeded"
	if !outcome.Succeeded() {
		tail = " Failed"
	}
	room := notify.MaxLength - utf8.RuneCountInString(head) - utf8.RuneCountInString(tail)
	return head + notify.Truncate(e.display(outcome.Root), room) + tail
}
