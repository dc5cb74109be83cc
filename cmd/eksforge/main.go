// Package main is the entry point for the eksforge CLI.
//
// eksforge provisions a managed Kubernetes cluster on AWS as one declarative
// deployment: network, control plane, node groups, workload identities,
// managed add-ons and Helm charts, applied in dependency order.
//
// Commands: init, plan, apply, version.
//
// For detailed usage information, run:
//
//	eksforge --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/imamik/eksforge/cmd/eksforge/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Root().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
