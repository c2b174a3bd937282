package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "workersqlctl",
	Short: "workersqlctl administers a running workersqld instance",
}

func init() {
	rootCmd.PersistentFlags().String("admin-addr", "http://127.0.0.1:8090", "workersqld admin API base URL")

	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func adminAddr(cmd *cobra.Command) string {
	addr, _ := cmd.Flags().GetString("admin-addr")
	if addr == "" {
		addr, _ = cmd.Root().PersistentFlags().GetString("admin-addr")
	}
	return addr
}
