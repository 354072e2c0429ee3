package procedurehelpers

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/smithy-go"
	awsHttp "github.com/aws/smithy-go/transport/http"
)

// Error codes that AWS services use to say that the thing being deleted or
// polled doesn't exist (any more)
var notFoundErrorCodes = []string{
	"ResourceNotFoundException",
	"NotFoundException",
	"ClusterNotFoundException",
	"ServiceNotFoundException",
	"InvalidInstanceID.NotFound",
	"InvalidVpcPeeringConnectionID.NotFound",
	"InvalidVpcPeeringConnectionId.NotFound",
	"InvalidRoute.NotFound",
	"InvalidRouteTableID.NotFound",
}

// IsNotFound Returns whether or not the error means that the resource is
// already gone. CloudFormation reports missing stacks as a ValidationError so
// that is only treated as not found when the message says so
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()

		if code == "ValidationError" {
			return strings.Contains(apiErr.ErrorMessage(), "does not exist")
		}

		if slices.Contains(notFoundErrorCodes, code) {
			return true
		}
	}

	var responseErr *awsHttp.ResponseError
	if errors.As(err, &responseErr) {
		return responseErr.HTTPStatusCode() == http.StatusNotFound
	}

	return false
}

// ResourceName Returns a short name for a resource given either its ARN or
// its name. For ARNs this is everything after the resource type e.g.
// "arn:aws:ecs:eu-west-1:052392120703:service/demo/web" becomes "demo/web"
func ResourceName(arnOrName string) string {
	a, err := arn.Parse(arnOrName)
	if err != nil {
		return arnOrName
	}

	separatorLocation := strings.IndexFunc(a.Resource, func(r rune) bool {
		return r == '/' || r == ':'
	})

	if separatorLocation == -1 {
		return a.Resource
	}

	return a.Resource[separatorLocation+1:]
}
