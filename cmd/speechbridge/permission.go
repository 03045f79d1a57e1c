package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func permissionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permission",
		Short: "Inspect or change microphone consent",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show the recorded consent",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(os.Stdin, os.Stderr)
				if err != nil {
					return err
				}
				st, err := a.perms.Status()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", st, a.store.Path())
				return nil
			},
		},
		&cobra.Command{
			Use:   "request",
			Short: "Ask for consent unless already granted",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(os.Stdin, os.Stderr)
				if err != nil {
					return err
				}
				ok, err := a.perms.Request(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), map[bool]string{true: "granted", false: "denied"}[ok])
				return nil
			},
		},
		&cobra.Command{
			Use:   "grant",
			Short: "Record consent without prompting",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(os.Stdin, os.Stderr)
				if err != nil {
					return err
				}
				return a.perms.Grant()
			},
		},
		&cobra.Command{
			Use:   "revoke",
			Short: "Withdraw consent",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(os.Stdin, os.Stderr)
				if err != nil {
					return err
				}
				return a.perms.Revoke()
			},
		},
	)
	return cmd
}
