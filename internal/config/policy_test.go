package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lbControllerPolicy = `{
  "Version": "2012-10-17",
  "Statement": [
    {"Effect": "Allow", "Action": ["elasticloadbalancing:DescribeLoadBalancers"], "Resource": "*"},
    {"Effect": "Allow", "Action": "ec2:DescribeSubnets", "Resource": "*"}
  ]
}`

func TestLoadPolicyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(lbControllerPolicy), 0600))

	doc, err := LoadPolicyDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "2012-10-17", doc.Version)
	assert.Len(t, doc.Statement, 2)

	out, err := doc.JSON()
	require.NoError(t, err)
	assert.Contains(t, out, `"ec2:DescribeSubnets"`)
}

func TestParsePolicyDocument_Invalid(t *testing.T) {
	tests := map[string]string{
		"not json":     `{`,
		"no version":   `{"Statement":[{"Effect":"Allow","Action":"*"}]}`,
		"no statement": `{"Version":"2012-10-17","Statement":[]}`,
		"bad effect":   `{"Version":"2012-10-17","Statement":[{"Effect":"Maybe","Action":"*"}]}`,
		"no action":    `{"Version":"2012-10-17","Statement":[{"Effect":"Allow"}]}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePolicyDocument([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadPolicyDocument_Missing(t *testing.T) {
	_, err := LoadPolicyDocument(filepath.Join(t.TempDir(), "none.json"))
	assert.ErrorContains(t, err, "failed to read policy document")
}
