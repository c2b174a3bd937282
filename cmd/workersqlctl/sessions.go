package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect live session state",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			ActiveSessions int `json:"active_sessions"`
		}
		if err := newAdminClient(adminAddr(cmd)).get("/admin/sessions", &out); err != nil {
			return err
		}
		fmt.Printf("active sessions: %d\n", out.ActiveSessions)
		return nil
	},
}
