package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/eksforge/cmd/eksforge/handlers"
)

// Init returns the command for interactively creating a descriptor.
//
// Flags:
//
//	--output, -o: Path to output file (default "eksforge.yaml")
//	--force, -f: Overwrite an existing file without asking
func Init() *cobra.Command {
	var (
		outputPath string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively create a deployment descriptor",
		Long: `Interactively create a deployment descriptor.

This command asks about:

  - Cluster name and Kubernetes version
  - Network range, zones and NAT gateways
  - The first node pool
  - Managed add-ons and the AWS Load Balancer Controller
  - Where the applied state is kept`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Init(cmd.Context(), outputPath, force)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "eksforge.yaml", "Output file path")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file without asking")

	return cmd
}
