package config

import (
	"fmt"
	"os"
	"regexp"
)

var accountIDRegex = regexp.MustCompile(`^[0-9]{12}$`)

// Environment is the account and region context of a deployment.
// It is resolved once by the CLI and passed into every component.
type Environment struct {
	AccountID string
	Region    string
	Profile   string
	// Partition is the ARN partition ("aws", "aws-cn", ...).
	Partition string
}

// ResolveEnvironment fills empty values from the process environment.
//
// Environment Variables:
//   - AWS_REGION, then AWS_DEFAULT_REGION
//   - EKSFORGE_ACCOUNT_ID
//   - AWS_PROFILE
func ResolveEnvironment(region, accountID, profile string) Environment {
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if accountID == "" {
		accountID = os.Getenv("EKSFORGE_ACCOUNT_ID")
	}
	if profile == "" {
		profile = os.Getenv("AWS_PROFILE")
	}
	return Environment{
		AccountID: accountID,
		Region:    region,
		Profile:   profile,
		Partition: PartitionForRegion(region),
	}
}

// PartitionForRegion returns the ARN partition a region belongs to.
func PartitionForRegion(region string) string {
	switch {
	case len(region) >= 3 && region[:3] == "cn-":
		return "aws-cn"
	case len(region) >= 7 && region[:7] == "us-gov-":
		return "aws-us-gov"
	default:
		return "aws"
	}
}

// Validate checks the environment is complete enough to deploy.
func (e Environment) Validate() error {
	if e.Region == "" {
		return fmt.Errorf("region is required (set --region or AWS_REGION)")
	}
	if e.AccountID != "" && !accountIDRegex.MatchString(e.AccountID) {
		return fmt.Errorf("invalid account id %q: must be 12 digits", e.AccountID)
	}
	return nil
}

// ManagedPolicyARN returns the ARN of a provider-managed policy. Values that
// already look like ARNs are returned unchanged.
func (e Environment) ManagedPolicyARN(name string) string {
	if len(name) > 4 && name[:4] == "arn:" {
		return name
	}
	return fmt.Sprintf("arn:%s:iam::aws:policy/%s", e.partition(), name)
}

// RootPrincipalARN returns the ARN of the account root principal.
func (e Environment) RootPrincipalARN() string {
	return fmt.Sprintf("arn:%s:iam::%s:root", e.partition(), e.AccountID)
}

func (e Environment) partition() string {
	if e.Partition == "" {
		return "aws"
	}
	return e.Partition
}
