package kube

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/imamik/eksforge/internal/platform/helm"
	"github.com/imamik/eksforge/internal/provisioning"
)

// Connector implements provisioning.KubeConnector for clusters whose API
// accepts tokens minted by a TokenSource.
type Connector struct {
	tokens    TokenSource
	log       logr.Logger
	scheme    *runtime.Scheme
	newClient func(*rest.Config, client.Options) (client.Client, error)
}

// NewConnector creates a connector minting tokens from tokens.
func NewConnector(tokens TokenSource, log logr.Logger) *Connector {
	scheme := runtime.NewScheme()
	_ = clientgoscheme.AddToScheme(scheme)
	return &Connector{tokens: tokens, log: log, scheme: scheme, newClient: client.New}
}

// Access implements provisioning.KubeConnector.
func (c *Connector) Access(ctx context.Context, cluster *provisioning.ClusterHandle) (provisioning.ClusterAccess, error) {
	rc, err := c.restConfig(ctx, cluster)
	if err != nil {
		return nil, err
	}
	cl, err := c.newClient(rc, client.Options{Scheme: c.scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create client for cluster %s: %w", cluster.Name, err)
	}
	return NewAccess(cl), nil
}

// Charts implements provisioning.KubeConnector.
func (c *Connector) Charts(ctx context.Context, cluster *provisioning.ClusterHandle, namespace string) (provisioning.ChartInstaller, error) {
	cfg, err := Kubeconfig(cluster)
	if err != nil {
		return nil, err
	}
	return helm.NewClient(cfg, namespace, BearerTransport(ctx, c.tokens, cluster.Name), c.log.WithName("helm"))
}

func (c *Connector) restConfig(ctx context.Context, cluster *provisioning.ClusterHandle) (*rest.Config, error) {
	cfg, err := Kubeconfig(cluster)
	if err != nil {
		return nil, err
	}
	rc, err := RESTConfig(cfg)
	if err != nil {
		return nil, err
	}
	rc.Wrap(BearerTransport(ctx, c.tokens, cluster.Name))
	return rc, nil
}
