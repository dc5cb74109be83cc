// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/eksforge/cmd/eksforge/handlers"
)

// Root returns the root command for the eksforge CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "eksforge",
		Short:         "Provision managed Kubernetes on AWS in dependency order",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(Init())
	cmd.AddCommand(Plan())
	cmd.AddCommand(Apply())
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}

// bindDeploymentFlags registers the flags shared by plan and apply.
func bindDeploymentFlags(cmd *cobra.Command, opts *handlers.Options) {
	f := cmd.Flags()
	f.StringVarP(&opts.ConfigPath, "config", "c", "", "Path to descriptor file (default: eksforge.yaml)")
	f.StringVar(&opts.Region, "region", "", "AWS region (default: $AWS_REGION)")
	f.StringVar(&opts.Profile, "profile", "", "AWS shared config profile (default: $AWS_PROFILE)")
	f.StringVar(&opts.AccountID, "account-id", "", "Expected AWS account id (default: $EKSFORGE_ACCOUNT_ID)")
	f.StringVarP(&opts.Output, "output", "o", handlers.OutputText, "Result format: text or json")
	f.StringVar(&opts.LogFormat, "log-format", handlers.OutputText, "Log format: text or json")
	f.IntVarP(&opts.Verbosity, "verbose", "v", 0, "Log verbosity for json logs")
}
