// Package engine propagates directive tag sets onto the objects of a
// namespace and keeps the per-directory frozen records current.
//
// A walk under a rule visits every directory below its target with an
// explicit stack. Directories that carry their own directive are handed to a
// nested walk owning a new rule scope. Directories whose record names a
// different rule origin are left untouched. Tagging failures are recorded and
// never stop the walk.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/google/uuid"

	"github.com/animus-labs/freezer/internal/domain"
	"github.com/animus-labs/freezer/internal/notify"
	"github.com/animus-labs/freezer/internal/state"
	"github.com/animus-labs/freezer/internal/storage/objectstore"
)

// Ledger receives one outcome per processed directive root.
type Ledger interface {
	Record(ctx context.Context, runID string, outcome domain.Outcome) error
}

type Config struct {
	FS       billy.Filesystem
	States   state.Store
	Tagger   objectstore.Tagger
	Notifier notify.Notifier
	Ledger   Ledger
	Logger   *slog.Logger

	// Root is where directive discovery starts; defaults to "/".
	Root string
	// DisplayPrefix is prepended to namespace paths in notifications, usually
	// the local mount path of the bucket.
	DisplayPrefix string
	NewRunID      func() string
}

type Engine struct {
	fs            billy.Filesystem
	states        state.Store
	tagger        objectstore.Tagger
	notifier      notify.Notifier
	ledger        Ledger
	logger        *slog.Logger
	root          string
	displayPrefix string
	newRunID      func() string
}

func New(cfg Config) (*Engine, error) {
	if cfg.FS == nil {
		return nil, errors.New("filesystem is required")
	}
	if cfg.States == nil {
		return nil, errors.New("state store is required")
	}
	if cfg.Tagger == nil {
		return nil, errors.New("tagger is required")
	}
	if cfg.Notifier == nil {
		return nil, errors.New("notifier is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	root := cfg.Root
	if strings.TrimSpace(root) == "" {
		root = "/"
	}
	newRunID := cfg.NewRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}
	return &Engine{
		fs:            cfg.FS,
		states:        cfg.States,
		tagger:        cfg.Tagger,
		notifier:      cfg.Notifier,
		ledger:        cfg.Ledger,
		logger:        logger,
		root:          path.Clean("/" + root),
		displayPrefix: strings.TrimRight(cfg.DisplayPrefix, "/"),
		newRunID:      newRunID,
	}, nil
}

// ObjectKey maps a namespace path onto its storage key.
func ObjectKey(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func (e *Engine) display(p string) string {
	if e.displayPrefix == "" {
		return p
	}
	return e.displayPrefix + path.Clean("/"+p)
}
