package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/animus-labs/freezer/internal/platform/auditlog"
	"github.com/animus-labs/freezer/internal/platform/postgres"
)

func newLedgerCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the Postgres run ledger",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Check the integrity hash chain of every recorded outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, _, err := opts.load()
			if err != nil {
				return err
			}
			dbCfg, ok, err := postgres.ConfigFromEnv(f.DatabaseURL)
			if err != nil {
				return invalidConfig(fmt.Errorf("database: %w", err))
			}
			if !ok {
				return invalidConfig(errors.New("no ledger database configured"))
			}
			db, err := postgres.Open(cmd.Context(), dbCfg)
			if err != nil {
				return unavailable(fmt.Errorf("database: %w", err))
			}
			defer db.Close()

			n, err := (&auditlog.Ledger{DB: db}).Verify(cmd.Context())
			var mismatch *auditlog.ChainMismatchError
			switch {
			case errors.As(err, &mismatch):
				fmt.Fprintf(opts.out, "%s after %d rows: %s\n", invalidColor.Sprint("BROKEN"), n, mismatch)
				return &exitError{code: 3, err: mismatch}
			case err != nil:
				return unavailable(err)
			}
			fmt.Fprintf(opts.out, "%s %d rows\n", okColor.Sprint("OK"), n)
			return nil
		},
	})
	return cmd
}
