package provisioning

import (
	"context"

	"github.com/imamik/eksforge/internal/config"
	awsplatform "github.com/imamik/eksforge/internal/platform/aws"
	"github.com/imamik/eksforge/internal/provisioning/graph"
)

// Deployment output names.
const (
	OutputMastersRoleARN  = "mastersRoleArn"
	OutputOIDCIssuer      = "oidcIssuer"
	OutputClusterName     = "clusterName"
	OutputClusterEndpoint = "clusterEndpoint"
)

// Context wraps all dependencies and state needed to apply a resource.
type Context struct {
	context.Context
	Env        config.Environment
	Descriptor *config.Descriptor
	State      *State
	Cloud      awsplatform.Provider
	Kube       KubeConnector
	Observer   Observer
	Timeouts   *config.Timeouts
	Metrics    *Metrics

	// Listener, when set, also receives every node transition of a
	// pipeline run, after the observer.
	Listener graph.Listener
}

// NewContext creates a new provisioning context.
func NewContext(
	ctx context.Context,
	env config.Environment,
	desc *config.Descriptor,
	cloud awsplatform.Provider,
	kube KubeConnector,
) *Context {
	return &Context{
		Context:    ctx,
		Env:        env,
		Descriptor: desc,
		State:      NewState(),
		Cloud:      cloud,
		Kube:       kube,
		Observer:   NewConsoleObserver(),
		Timeouts:   config.LoadTimeouts(),
	}
}

// WithContext returns a shallow copy bound to ctx. State and clients are
// shared.
func (c *Context) WithContext(ctx context.Context) *Context {
	cp := *c
	cp.Context = ctx
	return &cp
}

// WithObserver returns a shallow copy that reports through observer.
func (c *Context) WithObserver(observer Observer) *Context {
	cp := *c
	cp.Observer = observer
	return &cp
}
