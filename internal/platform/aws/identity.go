package aws

import (
	"context"
	"crypto/sha1" //nolint:gosec // IAM expects SHA-1 certificate thumbprints
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// CallerAccount returns the account ID of the active credentials.
func (c *RealClient) CallerAccount(ctx context.Context) (string, error) {
	out, err := call(ctx, c, "get caller identity", func(ctx context.Context) (*sts.GetCallerIdentityOutput, error) {
		return c.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.Account), nil
}

// EnsureRole creates the role or replaces its trust policy when it differs
// from spec.
func (c *RealClient) EnsureRole(ctx context.Context, spec RoleSpec) (*Role, error) {
	var currentTrust string
	return (&EnsureOperation[*Role]{
		Name:         spec.Name,
		ResourceType: "role",
		Get: func(ctx context.Context) (*Role, error) {
			out, err := call(ctx, c, "get role", func(ctx context.Context) (*iam.GetRoleOutput, error) {
				return c.iam.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(spec.Name)})
			})
			if IsNotFound(err) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			currentTrust = aws.ToString(out.Role.AssumeRolePolicyDocument)
			return &Role{Name: spec.Name, ARN: aws.ToString(out.Role.Arn)}, nil
		},
		Create: func(ctx context.Context) (*Role, error) {
			out, err := call(ctx, c, "create role", func(ctx context.Context) (*iam.CreateRoleOutput, error) {
				return c.iam.CreateRole(ctx, &iam.CreateRoleInput{
					RoleName:                 aws.String(spec.Name),
					AssumeRolePolicyDocument: aws.String(spec.TrustPolicy),
					Description:              optional(spec.Description),
					Tags:                     iamTags(spec.Tags),
				})
			})
			if err != nil {
				return nil, err
			}
			return &Role{Name: spec.Name, ARN: aws.ToString(out.Role.Arn)}, nil
		},
		Update: func(ctx context.Context, existing *Role) (*Role, error) {
			same, err := samePolicy(currentTrust, spec.TrustPolicy)
			if err != nil {
				return nil, err
			}
			if same {
				return existing, nil
			}
			_, err = call(ctx, c, "update assume role policy", func(ctx context.Context) (*iam.UpdateAssumeRolePolicyOutput, error) {
				return c.iam.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
					RoleName:       aws.String(spec.Name),
					PolicyDocument: aws.String(spec.TrustPolicy),
				})
			})
			if err != nil {
				return nil, err
			}
			return existing, nil
		},
	}).Execute(ctx)
}

// AttachManagedPolicy attaches a managed policy. Attaching twice is a no-op.
func (c *RealClient) AttachManagedPolicy(ctx context.Context, roleName, policyARN string) error {
	_, err := call(ctx, c, "attach role policy", func(ctx context.Context) (*iam.AttachRolePolicyOutput, error) {
		return c.iam.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  aws.String(roleName),
			PolicyArn: aws.String(policyARN),
		})
	})
	return err
}

// PutInlinePolicy creates or replaces an inline policy of a role.
func (c *RealClient) PutInlinePolicy(ctx context.Context, roleName, policyName, document string) error {
	_, err := call(ctx, c, "put role policy", func(ctx context.Context) (*iam.PutRolePolicyOutput, error) {
		return c.iam.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
			RoleName:       aws.String(roleName),
			PolicyName:     aws.String(policyName),
			PolicyDocument: aws.String(document),
		})
	})
	return err
}

// EnsureOIDCProvider registers issuerURL as a federation provider and makes
// sure every audience is an accepted client ID.
func (c *RealClient) EnsureOIDCProvider(ctx context.Context, issuerURL string, audiences []string, tags map[string]string) (string, error) {
	host := strings.TrimPrefix(issuerURL, "https://")
	var clientIDs []string

	return (&EnsureOperation[string]{
		Name:         host,
		ResourceType: "oidc provider",
		Get: func(ctx context.Context) (string, error) {
			list, err := call(ctx, c, "list oidc providers", func(ctx context.Context) (*iam.ListOpenIDConnectProvidersOutput, error) {
				return c.iam.ListOpenIDConnectProviders(ctx, &iam.ListOpenIDConnectProvidersInput{})
			})
			if err != nil {
				return "", err
			}
			for _, entry := range list.OpenIDConnectProviderList {
				arn := aws.ToString(entry.Arn)
				if !strings.HasSuffix(arn, ":oidc-provider/"+host) {
					continue
				}
				out, err := call(ctx, c, "get oidc provider", func(ctx context.Context) (*iam.GetOpenIDConnectProviderOutput, error) {
					return c.iam.GetOpenIDConnectProvider(ctx, &iam.GetOpenIDConnectProviderInput{OpenIDConnectProviderArn: aws.String(arn)})
				})
				if err != nil {
					return "", err
				}
				clientIDs = out.ClientIDList
				return arn, nil
			}
			return "", nil
		},
		Create: func(ctx context.Context) (string, error) {
			thumbprint, err := c.thumbprint(ctx, issuerURL)
			if err != nil {
				return "", err
			}
			out, err := call(ctx, c, "create oidc provider", func(ctx context.Context) (*iam.CreateOpenIDConnectProviderOutput, error) {
				return c.iam.CreateOpenIDConnectProvider(ctx, &iam.CreateOpenIDConnectProviderInput{
					Url:            aws.String(issuerURL),
					ClientIDList:   audiences,
					ThumbprintList: []string{thumbprint},
					Tags:           iamTags(tags),
				})
			})
			if err != nil {
				return "", err
			}
			return aws.ToString(out.OpenIDConnectProviderArn), nil
		},
		Update: func(ctx context.Context, arn string) (string, error) {
			for _, aud := range audiences {
				if slices.Contains(clientIDs, aud) {
					continue
				}
				_, err := call(ctx, c, "add oidc client id", func(ctx context.Context) (*iam.AddClientIDToOpenIDConnectProviderOutput, error) {
					return c.iam.AddClientIDToOpenIDConnectProvider(ctx, &iam.AddClientIDToOpenIDConnectProviderInput{
						OpenIDConnectProviderArn: aws.String(arn),
						ClientID:                 aws.String(aud),
					})
				})
				if err != nil {
					return "", err
				}
			}
			return arn, nil
		},
	}).Execute(ctx)
}

// samePolicy compares two policy documents semantically. IAM returns stored
// documents URL-encoded.
func samePolicy(current, desired string) (bool, error) {
	if current == "" {
		return false, nil
	}
	if decoded, err := url.QueryUnescape(current); err == nil {
		current = decoded
	}
	var a, b any
	if err := json.Unmarshal([]byte(current), &a); err != nil {
		return false, nil
	}
	if err := json.Unmarshal([]byte(desired), &b); err != nil {
		return false, fmt.Errorf("invalid policy document: %w", err)
	}
	return reflect.DeepEqual(a, b), nil
}

func iamTags(tags map[string]string) []iamtypes.Tag {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]iamtypes.Tag, 0, len(keys))
	for _, k := range keys {
		out = append(out, iamtypes.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}

// issuerThumbprint returns the SHA-1 fingerprint of the top certificate in
// the chain served by the issuer host.
func issuerThumbprint(ctx context.Context, issuerURL string) (string, error) {
	u, err := url.Parse(issuerURL)
	if err != nil {
		return "", fmt.Errorf("invalid issuer URL %q: %w", issuerURL, err)
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "443")
	}

	dialer := &tls.Dialer{Config: &tls.Config{ServerName: u.Hostname(), MinVersion: tls.VersionTLS12}}
	conn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return "", fmt.Errorf("failed to connect to issuer %s: %w", u.Hostname(), err)
	}
	defer conn.Close()

	certs := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return "", fmt.Errorf("issuer %s presented no certificates", u.Hostname())
	}
	sum := sha1.Sum(certs[len(certs)-1].Raw) //nolint:gosec // required format
	return hex.EncodeToString(sum[:]), nil
}
