package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/healthfees-org/workersql-sub002/pkg/types"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and mutate the routing policy",
}

var policyGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current routing policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		var p types.Policy
		if err := newAdminClient(adminAddr(cmd)).get("/admin/policy", &p); err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(p)
	},
}

var policyProposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Propose the next routing policy version from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		filename, _ := cmd.Flags().GetString("file")
		data, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		var p types.Policy
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("failed to parse policy: %w", err)
		}
		var installed types.Policy
		if err := newAdminClient(adminAddr(cmd)).post("/admin/policy", &p, &installed); err != nil {
			return err
		}
		fmt.Printf("policy proposed: version %d\n", installed.Version)
		return nil
	},
}

var policyRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back to a previously installed routing policy version",
	RunE: func(cmd *cobra.Command, args []string) error {
		toVersion, _ := cmd.Flags().GetUint64("to-version")
		req := map[string]uint64{"to_version": toVersion}
		var installed types.Policy
		if err := newAdminClient(adminAddr(cmd)).post("/admin/policy/rollback", req, &installed); err != nil {
			return err
		}
		fmt.Printf("policy rolled back: now version %d\n", installed.Version)
		return nil
	},
}

func init() {
	policyProposeCmd.Flags().StringP("file", "f", "", "JSON file containing the proposed policy (required)")
	_ = policyProposeCmd.MarkFlagRequired("file")

	policyRollbackCmd.Flags().Uint64("to-version", 0, "Version to restore the policy content from (required)")
	_ = policyRollbackCmd.MarkFlagRequired("to-version")

	policyCmd.AddCommand(policyGetCmd, policyProposeCmd, policyRollbackCmd)
}
