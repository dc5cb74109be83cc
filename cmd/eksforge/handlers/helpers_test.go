package handlers

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/imamik/eksforge/internal/config"
	awsplatform "github.com/imamik/eksforge/internal/platform/aws"
	"github.com/imamik/eksforge/internal/platform/aws/fake"
	"github.com/imamik/eksforge/internal/platform/kube"
	"github.com/imamik/eksforge/internal/provisioning"
	testutil "github.com/imamik/eksforge/internal/testing"
)

// saveAndRestoreFactories restores every factory variable after the test.
func saveAndRestoreFactories(t *testing.T) {
	t.Helper()

	origCloud := newCloud
	origKube := newKube
	origOpenState := openState
	origLoad := loadDescriptorFile
	origFileExists := fileExists
	origStdout := stdout
	origStderr := stderr
	origListen := listen
	origTTY := isInteractiveTTY
	origApply := applyDeployment
	origView := runApplyView
	origWizard := runWizard
	origConfirm := confirmOverwrite
	origWrite := writeDescriptor

	t.Cleanup(func() {
		newCloud = origCloud
		newKube = origKube
		openState = origOpenState
		loadDescriptorFile = origLoad
		fileExists = origFileExists
		stdout = origStdout
		stderr = origStderr
		listen = origListen
		isInteractiveTTY = origTTY
		applyDeployment = origApply
		runApplyView = origView
		runWizard = origWizard
		confirmOverwrite = origConfirm
		writeDescriptor = origWrite
	})
}

// fakeEnvironment wires the handlers to an in-memory cloud and cluster and
// captures stdout.
type fakeEnvironment struct {
	Cloud *fake.Cloud
	Kube  *testutil.FakeKube
	Out   *bytes.Buffer
	Dir   string
}

func newFakeEnvironment(t *testing.T) *fakeEnvironment {
	t.Helper()
	saveAndRestoreFactories(t)
	t.Setenv("EKSFORGE_RETRY_INITIAL_DELAY", "10ms")
	t.Setenv("EKSFORGE_TIMEOUT_DEPLOYMENT", "30s")

	env := &fakeEnvironment{
		Cloud: fake.New(),
		Kube:  testutil.NewFakeKube(),
		Out:   &bytes.Buffer{},
		Dir:   t.TempDir(),
	}
	newCloud = func(context.Context, config.Environment, *config.Timeouts) (awsplatform.Provider, error) {
		return env.Cloud, nil
	}
	newKube = func(kube.TokenSource, logr.Logger) provisioning.KubeConnector {
		return env.Kube
	}
	stdout = env.Out
	stderr = &bytes.Buffer{}
	return env
}

// writeDescriptorFile writes desc with its state kept in the test directory.
func (e *fakeEnvironment) writeDescriptorFile(t *testing.T, desc *config.Descriptor) string {
	t.Helper()
	desc.State = config.StateConfig{Backend: config.StateBackendFile, Path: filepath.Join(e.Dir, "state.json")}
	path := filepath.Join(e.Dir, "eksforge.yaml")
	require.NoError(t, config.WriteFile(desc, path))
	return path
}

func (e *fakeEnvironment) options(path string) Options {
	return Options{
		ConfigPath: path,
		Region:     e.Cloud.Region,
		AccountID:  e.Cloud.Account,
		Output:     OutputText,
		LogFormat:  OutputText,
	}
}
