package directive

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	billy "github.com/go-git/go-billy/v5"
)

// Find returns the first directive file in dir, in lexical order.
func Find(fs billy.Filesystem, dir string) (string, bool, error) {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return "", false, fmt.Errorf("read dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsDirective(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		return "", false, nil
	}
	sort.Strings(names)
	return names[0], true, nil
}

// SkipFunc is told about directories the scan could not read.
type SkipFunc func(dir string, err error)

// Discover scans the namespace below root and returns the minimal set of
// directories carrying a directive such that no returned directory lies
// beneath another. Nested directives are left for the enclosing walk.
//
// Unreadable directories below root are passed to skip, which may be nil, and
// left out of the scan. Only an unreadable root is an error.
func Discover(fs billy.Filesystem, root string, skip SkipFunc) ([]string, error) {
	candidates, err := scan(fs, path.Clean(root), skip)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if len(candidates[i]) != len(candidates[j]) {
			return len(candidates[i]) < len(candidates[j])
		}
		return candidates[i] < candidates[j]
	})

	roots := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if covered(roots, candidate) {
			continue
		}
		roots = append(roots, candidate)
	}
	return roots, nil
}

func covered(roots []string, dir string) bool {
	for _, root := range roots {
		if dir == root || strings.HasPrefix(dir, withSlash(root)) {
			return true
		}
	}
	return false
}

func withSlash(dir string) string {
	if strings.HasSuffix(dir, "/") {
		return dir
	}
	return dir + "/"
}

func scan(fs billy.Filesystem, root string, skip SkipFunc) ([]string, error) {
	var found []string
	seen := map[string]struct{}{}
	stack := []string{root}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}

		entries, err := fs.ReadDir(dir)
		if err != nil {
			if dir == root {
				return nil, fmt.Errorf("read dir %s: %w", dir, err)
			}
			if skip != nil {
				skip(dir, err)
			}
			continue
		}
		marked := false
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() {
				stack = append(stack, path.Join(dir, name))
				continue
			}
			if entry.Mode()&os.ModeSymlink != 0 {
				if target, ok := ResolveDir(fs, dir, name); ok {
					stack = append(stack, target)
				}
				continue
			}
			if IsDirective(name) && !marked {
				found = append(found, dir)
				marked = true
			}
		}
	}
	return found, nil
}

// ResolveDir follows a symlink entry and reports its cleaned target when the
// target is a directory inside the filesystem.
func ResolveDir(fs billy.Filesystem, dir, name string) (string, bool) {
	target, err := fs.Readlink(path.Join(dir, name))
	if err != nil {
		return "", false
	}
	if !path.IsAbs(target) {
		target = path.Join(dir, target)
	}
	target = path.Clean(target)
	info, err := fs.Stat(target)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return target, true
}
