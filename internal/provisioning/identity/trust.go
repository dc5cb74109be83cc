package identity

import (
	"github.com/imamik/eksforge/internal/config"
)

const policyVersion = "2012-10-17"

// ServiceTrust returns a trust document allowing a provider service (e.g.
// "eks.amazonaws.com") to assume the role.
func ServiceTrust(service string) (string, error) {
	return trustDocument(config.PolicyStatement{
		"Effect":    "Allow",
		"Principal": map[string]any{"Service": service},
		"Action":    "sts:AssumeRole",
	})
}

// AccountTrust returns a trust document allowing principals of the account
// identified by rootARN to assume the role.
func AccountTrust(rootARN string) (string, error) {
	return trustDocument(config.PolicyStatement{
		"Effect":    "Allow",
		"Principal": map[string]any{"AWS": rootARN},
		"Action":    "sts:AssumeRole",
	})
}

// WebIdentityTrust returns a trust document that accepts tokens issued by
// issuerHost only when both the audience and the subject claim match.
func WebIdentityTrust(providerARN, issuerHost, audience, subject string) (string, error) {
	return trustDocument(config.PolicyStatement{
		"Effect":    "Allow",
		"Principal": map[string]any{"Federated": providerARN},
		"Action":    "sts:AssumeRoleWithWebIdentity",
		"Condition": map[string]any{
			"StringEquals": map[string]any{
				issuerHost + ":aud": audience,
				issuerHost + ":sub": subject,
			},
		},
	})
}

func trustDocument(statement config.PolicyStatement) (string, error) {
	doc := &config.PolicyDocument{
		Version:   policyVersion,
		Statement: []config.PolicyStatement{statement},
	}
	return doc.JSON()
}
