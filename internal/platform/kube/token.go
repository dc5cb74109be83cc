package kube

import (
	"context"
	"time"

	"golang.org/x/oauth2"
	"k8s.io/client-go/transport"
)

// tokenLifetime is shorter than the 15 minutes the cluster authenticator
// accepts a presigned token for.
const tokenLifetime = 10 * time.Minute

// TokenSource mints cluster bearer tokens.
type TokenSource interface {
	ClusterToken(ctx context.Context, cluster string) (string, error)
}

type clusterTokenSource struct {
	ctx     context.Context
	tokens  TokenSource
	cluster string
	now     func() time.Time
}

func (s *clusterTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.tokens.ClusterToken(s.ctx, s.cluster)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
		Expiry:      s.now().Add(tokenLifetime),
	}, nil
}

// BearerTransport returns a transport wrapper that authenticates every
// request with a cached token, minting a new one as it nears expiry. ctx
// bounds token minting for the lifetime of the wrapper.
func BearerTransport(ctx context.Context, tokens TokenSource, cluster string) transport.WrapperFunc {
	src := oauth2.ReuseTokenSource(nil, &clusterTokenSource{ctx: ctx, tokens: tokens, cluster: cluster, now: time.Now})
	return transport.TokenSourceWrapTransport(src)
}
