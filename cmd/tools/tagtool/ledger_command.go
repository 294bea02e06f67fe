package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/tagbot/backend/internal/config"
	"github.com/zhouzirui/tagbot/backend/internal/service/ledger"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	var backend, path string

	open := func() (ledger.Ledger, error) {
		cfg, err := ctx.ensureConfig()
		if err != nil {
			return nil, err
		}
		lc := config.LedgerConfig{Backend: cfg.Ledger.Backend, Path: cfg.Ledger.Path}
		if backend != "" {
			lc.Backend = backend
		}
		if path != "" {
			lc.Path = path
		}
		return ledger.Open(lc, ctx.ensureLogger())
	}

	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or edit the thanks list",
	}
	ledgerCmd.PersistentFlags().StringVar(&backend, "backend", "", "Ledger backend (file, sqlite or bolt)")
	ledgerCmd.PersistentFlags().StringVar(&path, "path", "", "Ledger file or database path")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show every username that said thanks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := open()
			if err != nil {
				return err
			}
			defer l.Close()

			names, err := l.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No thanks recorded yet")
				return nil
			}

			rows := make([][]string, 0, len(names))
			for i, name := range names {
				rows = append(rows, []string{strconv.Itoa(i + 1), name})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"#", "Username"}, rows, []columnAlignment{alignRight, alignLeft}))
			return nil
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Record a username in the thanks list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := open()
			if err != nil {
				return err
			}
			defer l.Close()

			added, err := l.Record(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if added {
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already in the list\n", args[0])
			}
			return nil
		},
	}

	ledgerCmd.AddCommand(listCmd, addCmd)
	return ledgerCmd
}
