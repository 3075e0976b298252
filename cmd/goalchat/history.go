package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List your conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if s.loadErr != nil {
			return s.loadErr
		}
		r := &repl{session: s, out: cmd.OutOrStdout(), render: newRenderer(true)}
		r.printList()
		if g := s.store.ActiveGoal(); g != nil {
			fmt.Fprintln(r.out)
			r.printGoal()
		}
		return nil
	},
}
