package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chaz8081/speechbridge/internal/recognize"
)

func languagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List the languages the recognizer supports",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(os.Stdin, os.Stderr)
			if err != nil {
				return err
			}
			langs, err := a.rec.Languages(cmd.Context())
			if err != nil || len(langs) == 0 {
				a.logger.Warn("recognizer did not report languages, using built-in table", "error", err)
				langs = recognize.DefaultLanguages()
			}
			for _, l := range langs {
				fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}
}
