package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/healthfees-org/workersql-sub002/pkg/types"
)

// policyManifest is the apiVersion/kind/metadata/spec shape of a
// declarative RoutingPolicy resource, letting an operator submit a full
// tenant/range table as a new policy version in one call.
type policyManifest struct {
	APIVersion string       `yaml:"apiVersion"`
	Kind       string       `yaml:"kind"`
	Metadata   manifestMeta `yaml:"metadata"`
	Spec       policySpec   `yaml:"spec"`
}

type manifestMeta struct {
	Name string `yaml:"name"`
}

type policySpec struct {
	Tenants map[string]string `yaml:"tenants"`
	Ranges  []types.RangeRule `yaml:"ranges"`
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a declarative routing policy manifest",
	Long: `Apply a RoutingPolicy manifest YAML file, replacing the routing policy's
tenant/range table in one call.

Example:
  workersqlctl apply -f policy.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML manifest to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var manifest policyManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}
	if manifest.Kind != "RoutingPolicy" {
		return fmt.Errorf("unsupported manifest kind: %s", manifest.Kind)
	}

	next := types.Policy{Tenants: manifest.Spec.Tenants, Ranges: manifest.Spec.Ranges}
	var installed types.Policy
	if err := newAdminClient(adminAddr(cmd)).post("/admin/policy", &next, &installed); err != nil {
		return fmt.Errorf("failed to apply routing policy: %w", err)
	}

	fmt.Printf("✓ routing policy %q applied: version %d\n", manifest.Metadata.Name, installed.Version)
	return nil
}
