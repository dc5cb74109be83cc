package aws

import (
	"errors"
	"strings"

	"github.com/aws/smithy-go"
)

// APIErrorCode returns the provider error code carried by err, or "" if err
// is not an API error.
func APIErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsNotFound checks if an error indicates the resource does not exist.
func IsNotFound(err error) bool {
	code := APIErrorCode(err)
	switch code {
	case "NoSuchEntity", "ResourceNotFoundException", "NotFound":
		return true
	}
	return strings.HasSuffix(code, ".NotFound")
}

// IsAlreadyExists checks if an error indicates a create raced with an
// existing resource.
func IsAlreadyExists(err error) bool {
	switch APIErrorCode(err) {
	case "EntityAlreadyExists", "ResourceInUseException", "ResourceAlreadyExists":
		return true
	}
	return false
}

// IsThrottled checks if an error indicates rate limiting.
func IsThrottled(err error) bool {
	switch APIErrorCode(err) {
	case "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequestsException", "RequestThrottled":
		return true
	}
	return false
}

// IsRetryable checks if an error is transient: throttling, server faults,
// concurrent modification and the eventual consistency errors EC2 and IAM
// return right after a resource is created.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsThrottled(err) {
		return true
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.ErrorFault() == smithy.FaultServer {
		return true
	}
	switch apiErr.ErrorCode() {
	case "ServerException", "ServiceUnavailableException", "InternalError", "ServiceFailure",
		"ConcurrentModification", "DependencyViolation",
		"InvalidSubnetID.NotFound", "InvalidRouteTableID.NotFound", "InvalidInternetGatewayID.NotFound",
		"InvalidAllocationID.NotFound", "InvalidNatGatewayID.NotFound":
		return true
	case "InvalidParameterException", "InvalidParameterValue":
		return isEventualRoleError(apiErr)
	}
	return false
}

// IsRejection checks if the provider refused a request because of the
// request itself (invalid parameters, quota, permissions). Retrying does
// not help.
func IsRejection(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if IsRetryable(err) || IsNotFound(err) {
		return false
	}
	return apiErr.ErrorFault() != smithy.FaultServer
}

// isEventualRoleError matches EKS rejecting a role that IAM has created but
// not yet propagated.
func isEventualRoleError(apiErr smithy.APIError) bool {
	msg := strings.ToLower(apiErr.ErrorMessage())
	return strings.Contains(msg, "role") &&
		(strings.Contains(msg, "cannot be assumed") || strings.Contains(msg, "does not exist") || strings.Contains(msg, "not authorized to perform"))
}
