package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/eksforge/cmd/eksforge/handlers"
)

// Apply returns the command that provisions the deployment.
//
// Optional flags:
//
//	--config, -c: Path to descriptor YAML file (default: eksforge.yaml)
//	--output, -o: Result format (text or json)
//	--metrics-addr: Serve Prometheus metrics while applying
//
// Environment variables:
//
//	AWS_REGION, AWS_PROFILE, EKSFORGE_ACCOUNT_ID, EKSFORGE_TIMEOUT_*
func Apply() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create or update the deployment",
		Long: `Create or update every resource of the deployment.

Resources are applied in dependency order: the network, then the control
plane, then node groups, workload identities, managed add-ons and charts.
Independent resources are applied concurrently. When some resources fail,
the ones that became ready are kept and the next apply retries the rest.

Examples:
  # Apply eksforge.yaml in the current directory
  eksforge apply

  # Apply a specific descriptor and print the result as JSON
  eksforge apply -c production.yaml -o json

  # Expose metrics while applying
  eksforge apply --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Apply(cmd.Context(), opts)
		},
	}

	bindDeploymentFlags(cmd, &opts)
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (disabled when empty)")

	return cmd
}
