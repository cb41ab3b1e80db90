package dynamodb

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/corefabric/gatekit/store"
)

// classifyAWS pre-classifies DynamoDB errors so callers never see
// backend-specific error shapes. Errors it does not recognize pass
// through for the generic classifier.
func classifyAWS(err error) error {
	if err == nil {
		return nil
	}

	var (
		throughput *types.ProvisionedThroughputExceededException
		reqLimit   *types.RequestLimitExceeded
		internal   *types.InternalServerError
		notFound   *types.ResourceNotFoundException
	)
	switch {
	case errors.As(err, &throughput), errors.As(err, &reqLimit), errors.As(err, &internal):
		return store.Transient(err)
	case errors.As(err, &notFound):
		// The table itself is missing; retrying will not help.
		return store.Permanent(err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceUnavailable":
			return store.Transient(err)
		case "ValidationException", "AccessDeniedException", "SerializationException":
			return store.Permanent(err)
		}
	}

	return err
}
