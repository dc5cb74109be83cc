package helm

import (
	"sync"

	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
	"k8s.io/client-go/transport"
)

// RESTClientGetter implements genericclioptions.RESTClientGetter over a
// client configuration held in memory, so no kubeconfig file is written.
type RESTClientGetter struct {
	loader clientcmd.ClientConfig
	wrap   transport.WrapperFunc

	mu         sync.Mutex
	restConfig *rest.Config
	discovery  discovery.CachedDiscoveryInterface
}

// NewRESTClientGetter scopes cfg to namespace. wrap may be nil.
func NewRESTClientGetter(cfg *clientcmdapi.Config, namespace string, wrap transport.WrapperFunc) *RESTClientGetter {
	overrides := &clientcmd.ConfigOverrides{}
	overrides.Context.Namespace = namespace
	return &RESTClientGetter{loader: clientcmd.NewDefaultClientConfig(*cfg, overrides), wrap: wrap}
}

// ToRESTConfig returns the REST config, built once.
func (g *RESTClientGetter) ToRESTConfig() (*rest.Config, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.restConfig != nil {
		return g.restConfig, nil
	}
	rc, err := g.loader.ClientConfig()
	if err != nil {
		return nil, err
	}
	if g.wrap != nil {
		rc.Wrap(g.wrap)
	}
	g.restConfig = rc
	return rc, nil
}

// ToDiscoveryClient returns a memory-cached discovery client.
func (g *RESTClientGetter) ToDiscoveryClient() (discovery.CachedDiscoveryInterface, error) {
	rc, err := g.ToRESTConfig()
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.discovery != nil {
		return g.discovery, nil
	}
	dc, err := discovery.NewDiscoveryClientForConfig(rc)
	if err != nil {
		return nil, err
	}
	g.discovery = memory.NewMemCacheClient(dc)
	return g.discovery, nil
}

// ToRESTMapper returns a deferred discovery mapper so CRDs installed by
// a chart resolve without rebuilding the getter.
func (g *RESTClientGetter) ToRESTMapper() (meta.RESTMapper, error) {
	dc, err := g.ToDiscoveryClient()
	if err != nil {
		return nil, err
	}
	return restmapper.NewDeferredDiscoveryRESTMapper(dc), nil
}

// ToRawKubeConfigLoader returns the underlying client config.
func (g *RESTClientGetter) ToRawKubeConfigLoader() clientcmd.ClientConfig {
	return g.loader
}
