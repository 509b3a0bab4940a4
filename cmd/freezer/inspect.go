package main

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/animus-labs/freezer/internal/domain"
	"github.com/animus-labs/freezer/internal/engine"
	"github.com/animus-labs/freezer/internal/state"
	"github.com/animus-labs/freezer/internal/storage/objectstore"
)

var (
	okColor      = color.New(color.FgGreen)
	missingColor = color.New(color.FgYellow)
	invalidColor = color.New(color.FgRed)
)

func newInspectCmd(opts *globalOptions) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "inspect <dir>...",
		Short: "Show the frozen record of namespace directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, _, err := opts.load()
			if err != nil {
				return err
			}
			a, err := openNamespace(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer a.Close()

			var reader objectstore.TagReader
			if remote {
				if err := a.openObjectStore(f); err != nil {
					return err
				}
				reader = a.store
			}

			for _, arg := range args {
				dir := path.Clean("/" + arg)
				inspectDir(cmd.Context(), opts.out, a.states, reader, dir)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "also fetch the current tags of affected objects")
	return cmd
}

func inspectDir(ctx context.Context, w io.Writer, states state.Store, reader objectstore.TagReader, dir string) {
	rec, valid, cause := state.LoadOrEmpty(ctx, states, dir)
	if !valid {
		status := invalidColor.Sprint("INVALID")
		if state.Kind(cause) == "missing" {
			status = missingColor.Sprint("MISSING")
		}
		fmt.Fprintf(w, "%s\t%s\n", dir, status)
		if cause != nil && state.Kind(cause) != "missing" {
			fmt.Fprintf(w, "  %s\n", cause)
		}
		return
	}

	fmt.Fprintf(w, "%s\t%s\n", dir, okColor.Sprint("OK"))
	fmt.Fprintf(w, "  rule-at:         %s\n", rec.RuleOrigin)
	fmt.Fprintf(w, "  applied-tags:    %s\n", rec.AppliedTags)
	fmt.Fprintf(w, "  freezefile-tags: %s\n", rec.MarkerTags)

	files := append([]string(nil), rec.AffectedFiles...)
	sort.Strings(files)
	fmt.Fprintf(w, "  affected-files:  %d\n", len(files))
	for _, name := range files {
		if reader == nil {
			fmt.Fprintf(w, "    %s\n", name)
			continue
		}
		key := engine.ObjectKey(path.Join(dir, name))
		current, err := reader.GetObjectTags(ctx, key)
		if err != nil {
			fmt.Fprintf(w, "    %s\t%s\n", name, invalidColor.Sprintf("error: %v", err))
			continue
		}
		fmt.Fprintf(w, "    %s\t%s\n", name, remoteStatus(current, rec.AppliedTags))
	}
}

func remoteStatus(current, want domain.TagSet) string {
	if current.Equal(want) {
		return okColor.Sprint(current.String())
	}
	var b strings.Builder
	b.WriteString(current.String())
	b.WriteString(" (want ")
	b.WriteString(want.String())
	b.WriteString(")")
	return missingColor.Sprint(b.String())
}
