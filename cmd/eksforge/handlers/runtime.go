// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command definitions
// in the commands package. Handlers are framework-agnostic and can be tested
// independently of the CLI framework.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imamik/eksforge/internal/config"
	awsplatform "github.com/imamik/eksforge/internal/platform/aws"
	"github.com/imamik/eksforge/internal/platform/kube"
	"github.com/imamik/eksforge/internal/provisioning"
	"github.com/imamik/eksforge/internal/state"
)

// Output and log formats.
const (
	OutputText = "text"
	OutputJSON = "json"
)

// Options are the flags shared by plan and apply.
type Options struct {
	ConfigPath  string
	Region      string
	Profile     string
	AccountID   string
	Output      string
	LogFormat   string
	Verbosity   int
	MetricsAddr string
}

func (o Options) validate() error {
	for flag, v := range map[string]string{"output": o.Output, "log-format": o.LogFormat} {
		if v != "" && v != OutputText && v != OutputJSON {
			return fmt.Errorf("invalid --%s %q: must be text or json", flag, v)
		}
	}
	return nil
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// newCloud creates the AWS provider client.
	newCloud = func(ctx context.Context, env config.Environment, timeouts *config.Timeouts) (awsplatform.Provider, error) {
		return awsplatform.NewRealClient(ctx, env, timeouts)
	}

	// newKube creates the cluster API connector.
	newKube = func(tokens kube.TokenSource, log logr.Logger) provisioning.KubeConnector {
		return kube.NewConnector(tokens, log)
	}

	// openState opens the configured state backend.
	openState = state.Open

	// loadDescriptorFile loads a descriptor from file.
	loadDescriptorFile = config.LoadFile

	// fileExists checks if a file exists.
	fileExists = func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	}

	// stdout and stderr receive results and logs.
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr

	// listen opens the metrics listener.
	listen = net.Listen

	// isInteractiveTTY reports whether stdout is a terminal.
	isInteractiveTTY = func() bool {
		return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	}
)

// loadConfig loads and validates the descriptor. If configPath is empty it
// looks for eksforge.yaml in the current directory.
func loadConfig(configPath string) (*config.Descriptor, error) {
	if configPath == "" {
		if !fileExists(config.DefaultDescriptorFile) {
			return nil, fmt.Errorf("no descriptor found: %s does not exist\nRun 'eksforge init' to create one", config.DefaultDescriptorFile)
		}
		configPath = config.DefaultDescriptorFile
	}
	desc, err := loadDescriptorFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load descriptor %s: %w", configPath, err)
	}
	return desc, nil
}

// resolveEnvironment merges flags with the process environment.
func resolveEnvironment(opts Options) (config.Environment, error) {
	env := config.ResolveEnvironment(opts.Region, opts.AccountID, opts.Profile)
	if err := env.Validate(); err != nil {
		return env, err
	}
	return env, nil
}

// newLogger builds the logr sink used for json logs and for the helm and
// kube clients.
func newLogger(opts Options) logr.Logger {
	if opts.LogFormat == OutputJSON {
		return funcr.NewJSON(func(obj string) {
			fmt.Fprintln(stderr, obj)
		}, funcr.Options{Verbosity: opts.Verbosity, LogTimestamp: true})
	}
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(stderr, "%s: %s\n", prefix, args)
			return
		}
		fmt.Fprintln(stderr, args)
	}, funcr.Options{Verbosity: opts.Verbosity})
}

// newObserver returns the console observer, or a structured one for json
// logs.
func newObserver(opts Options, log logr.Logger) provisioning.Observer {
	if opts.LogFormat == OutputJSON {
		return provisioning.NewLogrObserver(log.WithName("deploy"))
	}
	return provisioning.NewConsoleObserver()
}

// startMetrics serves a Prometheus registry on addr. With an empty addr it
// returns nil metrics and a no-op stop.
func startMetrics(addr string, log logr.Logger) (*provisioning.Metrics, func(), error) {
	if addr == "" {
		return nil, func() {}, nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := provisioning.NewMetrics(reg)

	ln, err := listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "metrics server stopped")
		}
	}()
	log.V(1).Info("serving metrics", "addr", ln.Addr().String())

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return metrics, stop, nil
}
