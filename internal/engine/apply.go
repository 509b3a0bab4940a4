package engine

import (
	"context"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/animus-labs/freezer/internal/directive"
	"github.com/animus-labs/freezer/internal/domain"
	"github.com/animus-labs/freezer/internal/state"
)

// ApplyRule tags every object below targetDir with tags on behalf of the rule
// declared at ruleOrigin.
func (e *Engine) ApplyRule(ctx context.Context, targetDir, ruleOrigin string, tags domain.TagSet) domain.RunResult {
	targetDir = path.Clean("/" + targetDir)
	ruleOrigin = path.Clean("/" + ruleOrigin)
	tags = tags.Clone()
	logger := e.logger.With("rule", ruleOrigin, "tags", tags.String())

	result := domain.NewRunResult()
	visited := map[string]struct{}{}
	stack := []string{targetDir}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			logger.Warn("walk interrupted", "error", err)
			result.Success = false
			return result
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[dir]; ok {
			continue
		}
		visited[dir] = struct{}{}

		if dir != targetDir {
			handled, ok := e.applyNested(ctx, dir, &result)
			if !ok {
				result.Success = false
				continue
			}
			if handled {
				continue
			}
		}

		rec, valid, cause := state.LoadOrEmpty(ctx, e.states, dir)
		if !valid {
			logger.Warn("frozen record unusable", "dir", dir, "kind", state.Kind(cause), "error", cause)
			result.Success = false
		} else if rec.RuleOrigin != ruleOrigin {
			logger.Info("directory owned by another rule", "dir", dir, "owner", rec.RuleOrigin)
			continue
		}
		if !tags.Equal(rec.AppliedTags) {
			rec.AffectedFiles = []string{}
		}

		children, ok := e.tagDirectory(ctx, dir, tags, &rec, &result)
		if !ok {
			result.Success = false
			continue
		}
		stack = append(stack, children...)

		rec.RuleOrigin = ruleOrigin
		rec.AppliedTags = tags.Clone()
		rec.MarkerTags = domain.MarkerTags()
		if err := e.states.Save(ctx, dir, rec); err != nil {
			logger.Error("save frozen record", "dir", dir, "error", err)
			result.Success = false
		}
	}
	return result
}

// applyNested hands dir to a nested walk when it carries its own directive.
// handled reports whether dir was consumed; ok is false when dir could not be
// inspected or its directive is malformed.
func (e *Engine) applyNested(ctx context.Context, dir string, result *domain.RunResult) (handled bool, ok bool) {
	name, found, err := directive.Find(e.fs, dir)
	if err != nil {
		e.logger.Error("scan for directive", "dir", dir, "error", err)
		result.Failed = append(result.Failed, dir)
		return false, false
	}
	if !found {
		return false, true
	}
	markerPath := path.Join(dir, name)
	tags, err := directive.Parse(name)
	if err != nil {
		e.logger.Error("nested directive rejected", "path", markerPath, "error", err)
		result.Failed = append(result.Failed, markerPath)
		return true, false
	}

	e.logger.Info("nested directive", "path", markerPath, "tags", tags.String())
	result.Merge(e.ApplyRule(ctx, dir, dir, tags))
	if err := e.fs.Remove(markerPath); err != nil {
		e.logger.Error("remove nested directive", "path", markerPath, "error", err)
		result.Success = false
	}
	return true, true
}

// tagDirectory tags the direct children of dir and returns its subdirectories.
func (e *Engine) tagDirectory(ctx context.Context, dir string, tags domain.TagSet, rec *domain.Record, result *domain.RunResult) ([]string, bool) {
	entries, err := e.fs.ReadDir(dir)
	if err != nil {
		e.logger.Error("read directory", "dir", dir, "error", err)
		result.Failed = append(result.Failed, dir)
		return nil, false
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var children []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		full := path.Join(dir, name)
		if entry.IsDir() {
			children = append(children, full)
			continue
		}
		if entry.Mode()&os.ModeSymlink != 0 {
			if target, ok := directive.ResolveDir(e.fs, dir, name); ok {
				children = append(children, target)
				continue
			}
			if target, err := e.fs.Readlink(full); err == nil {
				if !path.IsAbs(target) {
					target = path.Join(dir, target)
				}
				full = path.Clean(target)
			}
		}

		marker := directive.IsDirective(name) || name == state.FileName
		want, prev := tags, rec.AppliedTags
		if marker {
			want, prev = domain.MarkerTags(), rec.MarkerTags
		}
		if want.Equal(prev) && rec.HasAffected(name) {
			continue
		}

		// Marker files are tracked with the marker tag set, but the remote
		// call always carries the rule's tags.
		if err := e.tagger.SetObjectTags(ctx, ObjectKey(full), tags); err != nil {
			e.logger.Warn("tag object", "path", full, "error", err)
			result.Success = false
			result.Failed = append(result.Failed, full)
			continue
		}
		result.Processed = append(result.Processed, full)
		if !marker {
			rec.AddAffected(name)
		}
	}
	return children, true
}
