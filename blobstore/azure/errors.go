package azure

import (
	"errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/bitrise-io/go-appendblob/appendblob"
)

// classify turns an SDK error into a StoreError.
// Statuses without an error code (HEAD responses, proxies) fall back to the
// status alone: 409 means a sealed blob, 404 a missing one.
func classify(err error) error {
	if err == nil {
		return nil
	}

	status, code := responseOf(err)

	kind := appendblob.KindOther
	switch {
	case bloberror.HasCode(err, bloberror.BlockCountExceedsLimit):
		kind = appendblob.KindBlockLimitExceeded
	case bloberror.HasCode(err, bloberror.BlobNotFound):
		kind = appendblob.KindObjectMissing
	case code == "" && status == http.StatusConflict:
		kind = appendblob.KindBlockLimitExceeded
	case code == "" && status == http.StatusNotFound:
		kind = appendblob.KindObjectMissing
	}

	return &appendblob.StoreError{Kind: kind, StatusCode: status, Err: err}
}

func responseOf(err error) (int, string) {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode, respErr.ErrorCode
	}
	return 0, ""
}

func alreadyExists(err error) bool {
	if err == nil {
		return false
	}
	if bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet) {
		return true
	}
	status, _ := responseOf(err)
	return status == http.StatusPreconditionFailed
}

func blobNotFound(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return true
	}
	status, code := responseOf(err)
	return status == http.StatusNotFound && code == ""
}
