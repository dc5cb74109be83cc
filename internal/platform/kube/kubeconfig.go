package kube

import (
	"encoding/base64"
	"fmt"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"github.com/imamik/eksforge/internal/provisioning"
)

// Kubeconfig builds an in-memory client configuration for cluster. It
// carries no credentials; callers attach a token through BearerTransport.
func Kubeconfig(cluster *provisioning.ClusterHandle) (*clientcmdapi.Config, error) {
	if cluster.Endpoint == "" {
		return nil, fmt.Errorf("cluster %s has no endpoint", cluster.Name)
	}
	ca, err := base64.StdEncoding.DecodeString(cluster.CertificateAuthority)
	if err != nil {
		return nil, fmt.Errorf("cluster %s: invalid certificate authority: %w", cluster.Name, err)
	}

	cfg := clientcmdapi.NewConfig()
	cfg.Clusters[cluster.Name] = &clientcmdapi.Cluster{
		Server:                   cluster.Endpoint,
		CertificateAuthorityData: ca,
	}
	cfg.AuthInfos[cluster.Name] = &clientcmdapi.AuthInfo{}
	cfg.Contexts[cluster.Name] = &clientcmdapi.Context{
		Cluster:  cluster.Name,
		AuthInfo: cluster.Name,
	}
	cfg.CurrentContext = cluster.Name
	return cfg, nil
}

// RESTConfig resolves cfg into a REST config.
func RESTConfig(cfg *clientcmdapi.Config) (*rest.Config, error) {
	rc, err := clientcmd.NewDefaultClientConfig(*cfg, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build REST config: %w", err)
	}
	return rc, nil
}
