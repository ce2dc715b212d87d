package s3express

import (
	"errors"
	"net/http"

	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-appendblob/appendblob"
)

type httpStatusError interface {
	HTTPStatusCode() int
}

// classify turns an SDK error into a StoreError.
func classify(err error) error {
	if err == nil {
		return nil
	}

	status := statusOf(err)
	kind := appendblob.KindOther

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			kind = appendblob.KindObjectMissing
		case "TooManyParts":
			kind = appendblob.KindBlockLimitExceeded
		}
	} else if status == http.StatusNotFound {
		kind = appendblob.KindObjectMissing
	}

	return &appendblob.StoreError{Kind: kind, StatusCode: status, Err: err}
}

func statusOf(err error) int {
	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.HTTPStatusCode()
	}
	return 0
}

func alreadyExists(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	status := statusOf(err)
	return status == http.StatusPreconditionFailed
}

func bucketExists(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "BucketAlreadyOwnedByYou":
			return true
		}
	}
	return false
}
