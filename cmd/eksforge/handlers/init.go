package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/eksforge/internal/config"
	"github.com/imamik/eksforge/internal/config/wizard"
)

// Factory function variables for init - can be replaced in tests.
var (
	// runWizard runs the interactive wizard.
	runWizard = wizard.RunWizard

	// confirmOverwrite asks before replacing an existing file.
	confirmOverwrite = wizard.ConfirmOverwrite

	// writeDescriptor writes the descriptor to a file.
	writeDescriptor = wizard.WriteDescriptor
)

// errAborted is returned when the user declines to overwrite.
var errAborted = errors.New("init aborted: existing file kept")

// Init runs the descriptor wizard and writes the result to a file.
func Init(ctx context.Context, outputPath string, force bool) error {
	if !isInteractiveTTY() {
		return fmt.Errorf("init needs an interactive terminal; write %s by hand or run it in a terminal", outputPath)
	}

	if fileExists(outputPath) && !force {
		ok, err := confirmOverwrite(outputPath)
		if err != nil {
			return fmt.Errorf("failed to confirm overwrite: %w", err)
		}
		if !ok {
			return errAborted
		}
	}

	printWelcome()

	result, err := runWizard(ctx)
	if err != nil {
		return fmt.Errorf("wizard canceled: %w", err)
	}

	desc := result.Descriptor()
	if problems := desc.Validate(); config.HasErrors(problems) {
		return &config.ConfigurationError{Problems: problems}
	}

	if err := writeDescriptor(desc, outputPath); err != nil {
		return fmt.Errorf("failed to write descriptor: %w", err)
	}

	printInitSuccess(outputPath, desc)
	return nil
}

// printWelcome prints the welcome message.
func printWelcome() {
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "eksforge - managed Kubernetes on AWS")
	fmt.Fprintln(stdout, "====================================")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "This wizard creates a deployment descriptor with sensible defaults.")
	fmt.Fprintln(stdout)
}

// printInitSuccess prints a summary and next steps.
func printInitSuccess(outputPath string, desc *config.Descriptor) {
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Descriptor saved!")
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "  File: %s\n", outputPath)
	fmt.Fprintln(stdout)

	fmt.Fprintln(stdout, "Deployment Summary")
	fmt.Fprintln(stdout, "------------------")
	fmt.Fprintf(stdout, "  Cluster:    %s (Kubernetes %s)\n", desc.Cluster.Name, desc.Cluster.Version)
	fmt.Fprintf(stdout, "  Network:    %s across %d zone(s), %d NAT gateway(s)\n",
		desc.Network.CIDR, desc.Network.MaxAZs, desc.Network.NATGatewayCount())
	for _, p := range desc.NodePools {
		fmt.Fprintf(stdout, "  Node pool:  %s, %d x %v (%s)\n", p.Name, p.DesiredSize, p.InstanceTypes, p.SubnetClass)
	}
	for _, a := range desc.Addons {
		fmt.Fprintf(stdout, "  Add-on:     %s\n", a.Name)
	}
	for _, c := range desc.Charts {
		fmt.Fprintf(stdout, "  Chart:      %s/%s\n", c.Namespace, c.Release)
	}
	fmt.Fprintln(stdout)

	fmt.Fprintln(stdout, "Next Steps")
	fmt.Fprintln(stdout, "----------")
	fmt.Fprintln(stdout, "  1. Select your AWS account and region:")
	fmt.Fprintln(stdout, "     export AWS_PROFILE=<profile> AWS_REGION=<region>")
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "  2. Review the plan:\n     eksforge plan -c %s\n", outputPath)
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "  3. Create the deployment:\n     eksforge apply -c %s\n", outputPath)
	fmt.Fprintln(stdout)
}
