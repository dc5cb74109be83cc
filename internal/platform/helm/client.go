package helm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-logr/logr"
	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/cli"
	"helm.sh/helm/v3/pkg/getter"
	"helm.sh/helm/v3/pkg/release"
	"helm.sh/helm/v3/pkg/repo"
	"helm.sh/helm/v3/pkg/storage/driver"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
	"k8s.io/client-go/transport"

	"github.com/imamik/eksforge/internal/provisioning"
)

// DefaultTimeout bounds a release wait when the request carries none.
const DefaultTimeout = 5 * time.Minute

// maxHistory caps stored release revisions so upgrades on every apply do
// not grow the release secrets without bound.
const maxHistory = 10

// ChartLoader resolves a request to a loaded chart.
type ChartLoader func(req provisioning.ChartRequest) (*chart.Chart, error)

// Client applies chart releases into one namespace.
type Client struct {
	namespace    string
	actionConfig *action.Configuration
	load         ChartLoader
}

// NewClient creates a client for namespace. wrap, when set, decorates the
// transport (for example to inject a refreshing bearer token). Helm's debug
// output goes to log at V(1).
func NewClient(cfg *clientcmdapi.Config, namespace string, wrap transport.WrapperFunc, log logr.Logger) (*Client, error) {
	actionConfig := new(action.Configuration)
	getterForNS := NewRESTClientGetter(cfg, namespace, wrap)
	debug := func(format string, v ...interface{}) {
		log.V(1).Info(fmt.Sprintf(format, v...), "namespace", namespace)
	}
	if err := actionConfig.Init(getterForNS, namespace, "secret", debug); err != nil {
		return nil, fmt.Errorf("failed to initialize helm action config: %w", err)
	}
	return NewClientWithConfig(actionConfig, namespace, LoadChart), nil
}

// NewClientWithConfig wires a prepared action configuration, such as one
// backed by in-memory release storage.
func NewClientWithConfig(actionConfig *action.Configuration, namespace string, load ChartLoader) *Client {
	if load == nil {
		load = LoadChart
	}
	return &Client{namespace: namespace, actionConfig: actionConfig, load: load}
}

// InstallOrUpgrade implements provisioning.ChartInstaller. The release is
// installed when it has no history, left alone when it is up to date and
// upgraded otherwise.
func (c *Client) InstallOrUpgrade(ctx context.Context, req provisioning.ChartRequest) error {
	if req.Namespace != "" && req.Namespace != c.namespace {
		return fmt.Errorf("release %s targets namespace %s, client is scoped to %s", req.Release, req.Namespace, c.namespace)
	}

	current, err := c.UpToDate(ctx, req)
	if err != nil {
		return err
	}
	if current {
		return nil
	}

	ch, err := c.load(req)
	if err != nil {
		return fmt.Errorf("failed to load chart: %w", err)
	}

	exists, err := c.ReleaseExists(req.Release)
	if err != nil {
		return err
	}
	if exists {
		_, err = c.upgrade(ctx, req, ch)
	} else {
		_, err = c.install(ctx, req, ch)
	}
	return err
}

func (c *Client) install(ctx context.Context, req provisioning.ChartRequest, ch *chart.Chart) (*release.Release, error) {
	installClient := action.NewInstall(c.actionConfig)
	installClient.ReleaseName = req.Release
	installClient.Namespace = c.namespace
	installClient.CreateNamespace = true
	installClient.Version = req.Version
	installClient.Wait = req.Wait
	installClient.Timeout = timeout(req)

	rel, err := installClient.RunWithContext(ctx, ch, req.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to install release %s: %w", req.Release, err)
	}
	return rel, nil
}

func (c *Client) upgrade(ctx context.Context, req provisioning.ChartRequest, ch *chart.Chart) (*release.Release, error) {
	upgradeClient := action.NewUpgrade(c.actionConfig)
	upgradeClient.Namespace = c.namespace
	upgradeClient.Version = req.Version
	upgradeClient.Wait = req.Wait
	upgradeClient.Timeout = timeout(req)
	upgradeClient.ReuseValues = false
	upgradeClient.MaxHistory = maxHistory

	rel, err := upgradeClient.RunWithContext(ctx, req.Release, ch, req.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade release %s: %w", req.Release, err)
	}
	return rel, nil
}

// UpToDate implements provisioning.ChartInstaller. Only a revision in
// status deployed counts; a failed or pending release is applied again.
func (c *Client) UpToDate(_ context.Context, req provisioning.ChartRequest) (bool, error) {
	rel, err := action.NewGet(c.actionConfig).Run(req.Release)
	switch {
	case errors.Is(err, driver.ErrReleaseNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to get release %s: %w", req.Release, err)
	}
	if rel.Info == nil || rel.Info.Status != release.StatusDeployed {
		return false, nil
	}
	if rel.Chart == nil || rel.Chart.Metadata == nil || rel.Chart.Metadata.Name != req.Chart {
		return false, nil
	}
	if req.Version != "" && rel.Chart.Metadata.Version != req.Version {
		return false, nil
	}
	return sameValues(rel.Config, req.Values)
}

// sameValues compares values in their stored JSON form, so numbers read
// back from release storage match the requested ints.
func sameValues(deployed, requested map[string]any) (bool, error) {
	if len(deployed) == 0 && len(requested) == 0 {
		return true, nil
	}
	a, err := json.Marshal(deployed)
	if err != nil {
		return false, fmt.Errorf("failed to encode deployed values: %w", err)
	}
	b, err := json.Marshal(requested)
	if err != nil {
		return false, fmt.Errorf("failed to encode requested values: %w", err)
	}
	return bytes.Equal(a, b), nil
}

// ReleaseExists reports whether the release has any recorded revision.
func (c *Client) ReleaseExists(name string) (bool, error) {
	histClient := action.NewHistory(c.actionConfig)
	histClient.Max = 1
	_, err := histClient.Run(name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, driver.ErrReleaseNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to read history of release %s: %w", name, err)
	}
}

// Status returns the status of the latest revision.
func (c *Client) Status(name string) (release.Status, error) {
	rel, err := action.NewStatus(c.actionConfig).Run(name)
	if err != nil {
		return release.StatusUnknown, err
	}
	return rel.Info.Status, nil
}

func timeout(req provisioning.ChartRequest) time.Duration {
	if req.Timeout <= 0 {
		return DefaultTimeout
	}
	return req.Timeout
}

// LoadChart downloads the requested chart version from its repository.
func LoadChart(req provisioning.ChartRequest) (*chart.Chart, error) {
	if req.Repository == "" {
		return nil, fmt.Errorf("chart %s names no repository", req.Chart)
	}

	settings := cli.New()
	chartPath, err := repo.FindChartInRepoURL(
		req.Repository,
		req.Chart,
		req.Version,
		"", "", "",
		getter.All(settings),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find chart %s in repo %s: %w", req.Chart, req.Repository, err)
	}
	defer func() {
		_ = os.Remove(chartPath)
	}()

	return loader.Load(chartPath)
}
