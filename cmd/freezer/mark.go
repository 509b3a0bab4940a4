package main

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5/util"
	"github.com/spf13/cobra"

	"github.com/animus-labs/freezer/internal/directive"
	"github.com/animus-labs/freezer/internal/domain"
)

func newMarkCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mark <dir> <key=value>...",
		Short: "Drop a freeze directive into a namespace directory",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, _, err := opts.load()
			if err != nil {
				return err
			}
			tags, err := parseTagArgs(args[1:])
			if err != nil {
				return invalidConfig(err)
			}
			a, err := openNamespace(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer a.Close()

			dir := path.Clean("/" + args[0])
			info, err := a.fs.Stat(dir)
			if err != nil {
				return unavailable(fmt.Errorf("stat %s: %w", dir, err))
			}
			if !info.IsDir() {
				return invalidConfig(fmt.Errorf("%s is not a directory", dir))
			}
			name := directive.Format(tags)
			if err := util.WriteFile(a.fs, path.Join(dir, name), nil, 0o644); err != nil {
				return unavailable(err)
			}
			fmt.Fprintln(opts.out, path.Join(dir, name))
			return nil
		},
	}
}

// parseTagArgs turns key=value arguments into a tag set that survives the
// directive naming convention.
func parseTagArgs(args []string) (domain.TagSet, error) {
	tags := domain.TagSet{}
	for _, arg := range args {
		if strings.ContainsAny(arg, ";/") {
			return nil, fmt.Errorf("tag %q must not contain ';' or '/'", arg)
		}
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("tag %q must be key=value", arg)
		}
		if _, dup := tags[key]; dup {
			return nil, fmt.Errorf("duplicate tag %q", key)
		}
		tags[key] = value
	}
	if len(tags) == 0 {
		return nil, errors.New("at least one tag is required")
	}
	if _, err := directive.Parse(directive.Format(tags)); err != nil {
		return nil, err
	}
	return tags, nil
}
