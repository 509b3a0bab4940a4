package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/animus-labs/freezer/internal/directive"
)

func newDiscoverCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "List the directive roots the next pass would process",
		Args:  cobra.NoArgs,
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

			roots, err := directive.Discover(a.fs, a.ns.ScanRoot, func(dir string, err error) {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %v\n", dir, err)
			})
			if err != nil {
				return unavailable(err)
			}
			for _, root := range roots {
				name, _, err := directive.Find(a.fs, root)
				if err != nil {
					return unavailable(err)
				}
				tags, perr := directive.Parse(name)
				if perr != nil {
					fmt.Fprintf(opts.out, "%s\tINVALID\t%s\n", root, perr)
					continue
				}
				fmt.Fprintf(opts.out, "%s\t%s\n", root, tags)
			}
			return nil
		},
	}
}
