package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"

	"github.com/animus-labs/freezer/internal/domain"
	"github.com/animus-labs/freezer/internal/state"
)

type tagCall struct {
	Key  string
	Tags domain.TagSet
}

type stubTagger struct {
	calls []tagCall
	fail  map[string]bool
}

func (s *stubTagger) SetObjectTags(ctx context.Context, key string, tags domain.TagSet) error {
	s.calls = append(s.calls, tagCall{Key: key, Tags: tags.Clone()})
	if s.fail[key] {
		return errors.New("remote rejected tagging")
	}
	return nil
}

func (s *stubTagger) keys() []string {
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.Key)
	}
	return out
}

type stubNotifier struct {
	messages []string
	err      error
}

func (s *stubNotifier) Notify(ctx context.Context, text string) error {
	s.messages = append(s.messages, text)
	return s.err
}

type stubLedger struct {
	runIDs   []string
	outcomes []domain.Outcome
}

func (s *stubLedger) Record(ctx context.Context, runID string, outcome domain.Outcome) error {
	s.runIDs = append(s.runIDs, runID)
	s.outcomes = append(s.outcomes, outcome)
	return nil
}

type fixture struct {
	fs       billy.Filesystem
	states   *state.FileStore
	tagger   *stubTagger
	notifier *stubNotifier
	ledger   *stubLedger
	engine   *Engine
}

func newFixture(t *testing.T, files ...string) *fixture {
	t.Helper()
	fs := memfs.New()
	for _, f := range files {
		require.NoError(t, util.WriteFile(fs, f, []byte("data"), 0o644))
	}
	states, err := state.NewFileStore(fs)
	require.NoError(t, err)

	f := &fixture{
		fs:       fs,
		states:   states,
		tagger:   &stubTagger{fail: map[string]bool{}},
		notifier: &stubNotifier{},
		ledger:   &stubLedger{},
	}
	f.engine, err = New(Config{
		FS:       fs,
		States:   states,
		Tagger:   f.tagger,
		Notifier: f.notifier,
		Ledger:   f.ledger,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		NewRunID: func() string { return "run-test" },
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) record(t *testing.T, dir string) domain.Record {
	t.Helper()
	rec, err := f.states.Load(context.Background(), dir)
	require.NoError(t, err)
	return rec
}

func (f *fixture) exists(path string) bool {
	_, err := f.fs.Stat(path)
	return err == nil
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	fs := memfs.New()
	states, err := state.NewFileStore(fs)
	require.NoError(t, err)
	_, err = New(Config{FS: fs, States: states, Tagger: &stubTagger{}})
	require.ErrorContains(t, err, "notifier")
}

func TestObjectKey(t *testing.T) {
	require.Equal(t, "a/x.txt", ObjectKey("/a/x.txt"))
	require.Equal(t, "a/x.txt", ObjectKey("a//x.txt"))
	require.Equal(t, "", ObjectKey("/"))
}

func TestApplyRuleTagsTreeAndWritesRecords(t *testing.T) {
	f := newFixture(t, "/a/x.txt", "/a/sub/y.txt", "/a/.hidden")
	tags := domain.TagSet{"tier": "cold"}

	res := f.engine.ApplyRule(context.Background(), "/a", "/a", tags)

	require.False(t, res.Success, "missing records must surface as failure")
	require.ElementsMatch(t, []string{"/a/x.txt", "/a/sub/y.txt"}, res.Processed)
	require.Empty(t, res.Failed)
	require.ElementsMatch(t, []string{"a/x.txt", "a/sub/y.txt"}, f.tagger.keys())
	for _, c := range f.tagger.calls {
		require.Equal(t, tags, c.Tags)
	}

	rec := f.record(t, "/a")
	require.Equal(t, "/a", rec.RuleOrigin)
	require.Equal(t, tags, rec.AppliedTags)
	require.Equal(t, domain.MarkerTags(), rec.MarkerTags)
	require.Equal(t, []string{"x.txt"}, rec.AffectedFiles)

	sub := f.record(t, "/a/sub")
	require.Equal(t, "/a", sub.RuleOrigin)
	require.Equal(t, []string{"y.txt"}, sub.AffectedFiles)
}

func TestApplyRuleIsIdempotent(t *testing.T) {
	f := newFixture(t, "/a/x.txt", "/a/sub/y.txt", "/a/sub/deep/z.txt")
	tags := domain.TagSet{"tier": "cold"}
	f.engine.ApplyRule(context.Background(), "/a", "/a", tags)
	require.Len(t, f.tagger.calls, 3)

	f.tagger.calls = nil
	res := f.engine.ApplyRule(context.Background(), "/a", "/a", tags)
	require.True(t, res.Success)
	require.Empty(t, f.tagger.calls)
	require.Empty(t, res.Processed)
}

func TestApplyRuleRetagsWhenTagsChange(t *testing.T) {
	f := newFixture(t, "/a/x.txt")
	f.engine.ApplyRule(context.Background(), "/a", "/a", domain.TagSet{"tier": "cold"})
	f.tagger.calls = nil

	res := f.engine.ApplyRule(context.Background(), "/a", "/a", domain.TagSet{"tier": "archive"})
	require.True(t, res.Success)
	require.Equal(t, []tagCall{{Key: "a/x.txt", Tags: domain.TagSet{"tier": "archive"}}}, f.tagger.calls)
	require.Equal(t, domain.TagSet{"tier": "archive"}, f.record(t, "/a").AppliedTags)
}

func TestApplyRuleTagsNewFilesOnly(t *testing.T) {
	f := newFixture(t, "/a/x.txt")
	tags := domain.TagSet{"tier": "cold"}
	f.engine.ApplyRule(context.Background(), "/a", "/a", tags)
	require.NoError(t, util.WriteFile(f.fs, "/a/new.txt", []byte("n"), 0o644))
	f.tagger.calls = nil

	res := f.engine.ApplyRule(context.Background(), "/a", "/a", tags)
	require.True(t, res.Success)
	require.Equal(t, []string{"a/new.txt"}, f.tagger.keys())
	require.Equal(t, []string{"x.txt", "new.txt"}, f.record(t, "/a").AffectedFiles)
}

func TestApplyRuleRespectsOwnership(t *testing.T) {
	f := newFixture(t, "/p/top.txt", "/p/d/owned.txt", "/p/d/inner/deep.txt", "/p/e/free.txt")
	owned := domain.Record{
		RuleOrigin:    "/elsewhere",
		AppliedTags:   domain.TagSet{"tier": "hot"},
		MarkerTags:    domain.MarkerTags(),
		AffectedFiles: []string{"owned.txt"},
	}
	require.NoError(t, f.states.Save(context.Background(), "/p/d", owned))
	before, err := util.ReadFile(f.fs, "/p/d/"+state.FileName)
	require.NoError(t, err)

	res := f.engine.ApplyRule(context.Background(), "/p", "/p", domain.TagSet{"tier": "cold"})

	require.ElementsMatch(t, []string{"p/top.txt", "p/e/free.txt"}, f.tagger.keys())
	require.Empty(t, res.Failed)
	after, err := util.ReadFile(f.fs, "/p/d/"+state.FileName)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.False(t, f.exists("/p/d/inner/"+state.FileName))
}

func TestApplyRuleNestedDirectiveTakesPrecedence(t *testing.T) {
	f := newFixture(t,
		"/a/x.txt",
		"/a/n/.freeze.tier=hot;owner=ml",
		"/a/n/z.txt",
		"/a/n/m/w.txt",
	)
	res := f.engine.ApplyRule(context.Background(), "/a", "/a", domain.TagSet{"tier": "cold"})

	require.Empty(t, res.Failed)
	byKey := map[string]domain.TagSet{}
	for _, c := range f.tagger.calls {
		byKey[c.Key] = c.Tags
	}
	require.Equal(t, domain.TagSet{"tier": "cold"}, byKey["a/x.txt"])
	require.Equal(t, domain.TagSet{"tier": "hot", "owner": "ml"}, byKey["a/n/z.txt"])
	require.Equal(t, domain.TagSet{"tier": "hot", "owner": "ml"}, byKey["a/n/m/w.txt"])

	require.False(t, f.exists("/a/n/.freeze.tier=hot;owner=ml"))
	require.Equal(t, "/a/n", f.record(t, "/a/n").RuleOrigin)
	require.Equal(t, "/a/n", f.record(t, "/a/n/m").RuleOrigin)
	require.Equal(t, "/a", f.record(t, "/a").RuleOrigin)
}

func TestApplyRuleMalformedNestedDirective(t *testing.T) {
	f := newFixture(t, "/a/x.txt", "/a/bad/.freeze.oops", "/a/bad/y.txt")
	res := f.engine.ApplyRule(context.Background(), "/a", "/a", domain.TagSet{"tier": "cold"})

	require.False(t, res.Success)
	require.Equal(t, []string{"/a/bad/.freeze.oops"}, res.Failed)
	require.Equal(t, []string{"a/x.txt"}, f.tagger.keys())
	require.True(t, f.exists("/a/bad/.freeze.oops"))
}

func TestApplyRulePartialFailureIsolation(t *testing.T) {
	f := newFixture(t, "/d/f.txt", "/d/g.txt")
	f.tagger.fail["d/f.txt"] = true
	tags := domain.TagSet{"tier": "cold"}

	res := f.engine.ApplyRule(context.Background(), "/d", "/d", tags)
	require.False(t, res.Success)
	require.Equal(t, []string{"/d/f.txt"}, res.Failed)
	require.Equal(t, []string{"/d/g.txt"}, res.Processed)
	require.Equal(t, []string{"g.txt"}, f.record(t, "/d").AffectedFiles)

	// the failed file is retried on the next run, the tagged one is not
	delete(f.tagger.fail, "d/f.txt")
	f.tagger.calls = nil
	res = f.engine.ApplyRule(context.Background(), "/d", "/d", tags)
	require.True(t, res.Success)
	require.Equal(t, []string{"d/f.txt"}, f.tagger.keys())
	require.ElementsMatch(t, []string{"g.txt", "f.txt"}, f.record(t, "/d").AffectedFiles)
}

func TestApplyRuleSchemaRejection(t *testing.T) {
	f := newFixture(t, "/d/f.txt", "/d/g.txt")
	require.NoError(t, util.WriteFile(f.fs, "/d/"+state.FileName, []byte(`{
    "applied-tags": {"tier": "cold"},
    "freezefile-tags": {"storage-class": "infrequent-access"},
    "rule-at": "/d"
}`), 0o644))

	res := f.engine.ApplyRule(context.Background(), "/d", "/d", domain.TagSet{"tier": "cold"})
	require.False(t, res.Success)
	require.ElementsMatch(t, []string{"d/f.txt", "d/g.txt"}, f.tagger.keys())
	require.ElementsMatch(t, []string{"f.txt", "g.txt"}, f.record(t, "/d").AffectedFiles)
}

func TestApplyRuleFollowsDirectorySymlinksOnce(t *testing.T) {
	f := newFixture(t, "/a/x.txt", "/a/real/y.txt")
	require.NoError(t, f.fs.Symlink("real", "/a/link"))
	require.NoError(t, f.fs.Symlink("/a", "/a/real/loop"))

	res := f.engine.ApplyRule(context.Background(), "/a", "/a", domain.TagSet{"tier": "cold"})
	require.Empty(t, res.Failed)
	require.ElementsMatch(t, []string{"a/x.txt", "a/real/y.txt"}, f.tagger.keys())
}

func TestApplyRuleStopsOnCancelledContext(t *testing.T) {
	f := newFixture(t, "/a/x.txt")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := f.engine.ApplyRule(ctx, "/a", "/a", domain.TagSet{"tier": "cold"})
	require.False(t, res.Success)
	require.Empty(t, f.tagger.calls)
}
