package engine

import (
	"context"
	"errors"
	"os"
	"path"
	"strings"
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"

	"github.com/animus-labs/freezer/internal/directive"
	"github.com/animus-labs/freezer/internal/domain"
	"github.com/animus-labs/freezer/internal/notify"
	"github.com/animus-labs/freezer/internal/state"
)

func TestRunPassEndToEnd(t *testing.T) {
	f := newFixture(t, "/a/.freeze.tier=cold", "/a/x.txt", "/a/sub/y.txt")
	f.engine.displayPrefix = "/root"

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)
	require.Equal(t, "run-test", report.RunID)
	require.Len(t, report.Outcomes, 1)
	require.ElementsMatch(t, []string{"a/x.txt", "a/sub/y.txt"}, f.tagger.keys())
	for _, c := range f.tagger.calls {
		require.Equal(t, domain.TagSet{"tier": "cold"}, c.Tags)
	}
	require.False(t, f.exists("/a/.freeze.tier=cold"))
	require.Equal(t, "/a", f.record(t, "/a").RuleOrigin)
	require.Equal(t, "/a", f.record(t, "/a/sub").RuleOrigin)
	require.Equal(t, []string{"Freezing path /root/a Failed"}, f.notifier.messages,
		"first run sees no prior records")

	recA, err := util.ReadFile(f.fs, "/a/"+state.FileName)
	require.NoError(t, err)
	recSub, err := util.ReadFile(f.fs, "/a/sub/"+state.FileName)
	require.NoError(t, err)

	require.NoError(t, util.WriteFile(f.fs, "/a/.freeze.tier=cold", nil, 0o644))
	f.tagger.calls = nil
	f.notifier.messages = nil

	report, err = f.engine.RunPass(context.Background())
	require.NoError(t, err)
	require.Empty(t, f.tagger.calls)
	require.Equal(t, 0, report.Failed())
	require.Equal(t, []string{"Freezing path /root/a Succeeded"}, f.notifier.messages)

	afterA, err := util.ReadFile(f.fs, "/a/"+state.FileName)
	require.NoError(t, err)
	afterSub, err := util.ReadFile(f.fs, "/a/sub/"+state.FileName)
	require.NoError(t, err)
	require.Equal(t, recA, afterA)
	require.Equal(t, recSub, afterSub)
	require.False(t, f.exists("/a/.freeze.tier=cold"))

	require.Len(t, f.ledger.outcomes, 2)
	require.Equal(t, []string{"run-test", "run-test"}, f.ledger.runIDs)
}

func TestRunPassProcessesEachRootOnce(t *testing.T) {
	f := newFixture(t,
		"/a/.freeze.tier=cold",
		"/a/b/.freeze.tier=hot",
		"/a/b/y.txt",
		"/c/.freeze.tier=warm",
		"/c/.freeze.tier=zzz",
		"/c/z.txt",
	)
	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	roots := make([]string, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		roots = append(roots, o.Root)
	}
	require.Equal(t, []string{"/a", "/c"}, roots)
	require.Len(t, f.notifier.messages, 2)

	byKey := map[string]domain.TagSet{}
	for _, c := range f.tagger.calls {
		byKey[c.Key] = c.Tags
	}
	require.Equal(t, domain.TagSet{"tier": "hot"}, byKey["a/b/y.txt"])
	require.Equal(t, domain.TagSet{"tier": "warm"}, byKey["c/z.txt"])

	require.False(t, f.exists("/a/b/.freeze.tier=hot"))
	require.False(t, f.exists("/c/.freeze.tier=warm"))
	require.True(t, f.exists("/c/.freeze.tier=zzz"), "extra directives wait for the next pass")
}

func TestRunPassReportsMalformedDirective(t *testing.T) {
	f := newFixture(t, "/a/.freeze.nonsense", "/a/x.txt")
	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)

	var perr *directive.ParseError
	require.True(t, errors.As(report.Outcomes[0].Err, &perr))
	require.Empty(t, f.tagger.calls)
	require.True(t, f.exists("/a/.freeze.nonsense"))
	require.Equal(t, []string{"Freezing path /a Failed"}, f.notifier.messages)
}

func TestRunPassSurvivesNotifierErrors(t *testing.T) {
	f := newFixture(t, "/a/.freeze.tier=cold", "/a/x.txt", "/b/.freeze.tier=cold", "/b/y.txt")
	f.notifier.err = errors.New("chat unavailable")

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	require.Len(t, f.notifier.messages, 2)
}

func TestRunPassNothingToDo(t *testing.T) {
	f := newFixture(t, "/a/x.txt")
	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Outcomes)
	require.Empty(t, f.notifier.messages)
}

func TestMessageTruncatesLongPaths(t *testing.T) {
	f := newFixture(t)
	root := "/" + strings.Repeat("d", 5000)
	msg := f.engine.Message(domain.Outcome{Root: root, Result: domain.NewRunResult()})
	require.True(t, strings.HasPrefix(msg, "Freezing path /ddd"))
	require.True(t, strings.HasSuffix(msg, "... Succeeded"))
	require.Len(t, msg, notify.MaxLength)
	require.Equal(t, msg, notify.Truncate(msg, notify.MaxLength), "text must survive the notifier's own cut")

	failed := f.engine.Message(domain.Outcome{Root: root, Result: domain.RunResult{Success: false}})
	require.True(t, strings.HasSuffix(failed, "... Failed"))
	require.Len(t, failed, notify.MaxLength)
}

func TestMessageKeepsShortPaths(t *testing.T) {
	f := newFixture(t)
	f.engine.displayPrefix = "/mnt/bucket"
	msg := f.engine.Message(domain.Outcome{Root: "/a/b", Result: domain.NewRunResult()})
	require.Equal(t, "Freezing path /mnt/bucket/a/b Succeeded", msg)
}

type unreadableFS struct {
	billy.Filesystem
	dir string
}

func (u unreadableFS) ReadDir(dir string) ([]os.FileInfo, error) {
	if path.Clean(dir) == u.dir {
		return nil, &os.PathError{Op: "open", Path: dir, Err: os.ErrPermission}
	}
	return u.Filesystem.ReadDir(dir)
}

func TestRunPassSkipsUnreadableDirectory(t *testing.T) {
	f := newFixture(t, "/a/.freeze.tier=cold", "/a/x.txt", "/zz-private/y.txt")
	f.engine.fs = unreadableFS{Filesystem: f.fs, dir: "/zz-private"}

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	require.Equal(t, "/a", report.Outcomes[0].Root)
	require.Equal(t, []string{"a/x.txt"}, f.tagger.keys())
	require.Equal(t, []string{"Freezing path /a Failed"}, f.notifier.messages)
	require.False(t, f.exists("/a/.freeze.tier=cold"))
}
