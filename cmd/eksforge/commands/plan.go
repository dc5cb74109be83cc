package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/eksforge/cmd/eksforge/handlers"
)

// Plan returns the command that shows what apply would do.
func Plan() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the apply order and what would change",
		Long: `Validate the descriptor, build the resource graph and compare it with the
last applied state.

No cloud resources are read or changed. The state backend is read to
classify each resource as create, update or unchanged.

Examples:
  eksforge plan
  eksforge plan -c production.yaml -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Plan(cmd.Context(), opts)
		},
	}

	bindDeploymentFlags(cmd, &opts)

	return cmd
}
