package aws

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterToken(t *testing.T) {
	t.Parallel()
	stsClient := sts.New(sts.Options{
		Region:      "eu-west-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
	})
	c := newTestClient()
	c.presign = sts.NewPresignClient(stsClient)

	token, err := c.ClusterToken(context.Background(), "cluster")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(token, tokenPrefix))

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(token, tokenPrefix))
	require.NoError(t, err)
	presigned := string(raw)

	assert.Contains(t, presigned, "sts.eu-west-1.amazonaws.com")
	assert.Contains(t, presigned, "Action=GetCallerIdentity")
	assert.Contains(t, presigned, "x-k8s-aws-id")
	assert.Contains(t, presigned, "X-Amz-Signature=")
}
