package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/healthfees-org/workersql-sub002/pkg/splitplan"
	"github.com/healthfees-org/workersql-sub002/pkg/types"
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Drive the online shard-split lifecycle",
}

var splitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every known split plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		var plans []*types.SplitPlan
		if err := newAdminClient(adminAddr(cmd)).get("/admin/splits", &plans); err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(plans)
	},
}

var splitStatusCmd = &cobra.Command{
	Use:   "status [split-id]",
	Short: "Print a split plan's metrics snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var snap splitplan.Snapshot
		if err := newAdminClient(adminAddr(cmd)).get("/admin/splits/"+args[0], &snap); err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(snap)
	},
}

var splitPlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan a new shard split",
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		target, _ := cmd.Flags().GetString("target")
		tenants, _ := cmd.Flags().GetString("tenants")

		req := map[string]interface{}{
			"source":     source,
			"target":     target,
			"tenant_ids": strings.Split(tenants, ","),
		}
		var plan types.SplitPlan
		if err := newAdminClient(adminAddr(cmd)).post("/admin/splits", req, &plan); err != nil {
			return err
		}
		fmt.Printf("split plan created: %s\n", plan.SplitID)
		return nil
	},
}

func splitActionCmd(use, short, action string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [split-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAdminClient(adminAddr(cmd)).post("/admin/splits/"+args[0]+"/"+action, nil, nil); err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", action, args[0])
			return nil
		},
	}
}

func init() {
	splitPlanCmd.Flags().String("source", "", "Source shard id (required)")
	splitPlanCmd.Flags().String("target", "", "Target shard id (required)")
	splitPlanCmd.Flags().String("tenants", "", "Comma-separated tenant ids to migrate (required)")
	_ = splitPlanCmd.MarkFlagRequired("source")
	_ = splitPlanCmd.MarkFlagRequired("target")
	_ = splitPlanCmd.MarkFlagRequired("tenants")

	splitCmd.AddCommand(
		splitListCmd,
		splitStatusCmd,
		splitPlanCmd,
		splitActionCmd("dual-write", "Start dual-write fanout for a planned split", "dual-write"),
		splitActionCmd("backfill", "Run the bulk row backfill for a split", "backfill"),
		splitActionCmd("replay-tail", "(Re)start tail replay for a split", "replay-tail"),
		splitActionCmd("cutover", "Cut the routing policy over to the target shard", "cutover"),
		splitActionCmd("rollback", "Roll back an in-flight split", "rollback"),
	)
}
