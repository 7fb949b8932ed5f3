package minio

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/koustreak/dac/internal/errs"
	miniogo "github.com/minio/minio-go/v7"
)

// s3CodeKinds covers the S3 codes ListObjects and PresignedGetObject can
// return for a backup bucket. Object-level codes cannot occur since the
// inventory never reads an object body.
var s3CodeKinds = map[string]errs.ErrKind{
	"NoSuchBucket": errs.ErrKindNotFound,

	"AccessDenied":          errs.ErrKindPermissionDenied,
	"AllAccessDisabled":     errs.ErrKindPermissionDenied,
	"InvalidAccessKeyId":    errs.ErrKindPermissionDenied,
	"SignatureDoesNotMatch": errs.ErrKindPermissionDenied,
	"ExpiredToken":          errs.ErrKindPermissionDenied,

	"InvalidBucketName": errs.ErrKindInvalidInput,
	"InvalidArgument":   errs.ErrKindInvalidInput,

	"RequestTimeout": errs.ErrKindTimeout,
	"SlowDown":       errs.ErrKindTimeout,

	"ServiceUnavailable":         errs.ErrKindConnectionFailed,
	"XMinioServerNotInitialized": errs.ErrKindConnectionFailed,
}

// mapError classifies a list or presign failure. The S3 code wins over the
// HTTP status; an error with neither is a transport failure.
// A nil err maps to nil.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var resp miniogo.ErrorResponse
	if !errors.As(err, &resp) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}
	if resp.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, resp.Message)
	}

	if kind, ok := s3CodeKinds[resp.Code]; ok {
		return errs.Wrap(kind, msg, err)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case http.StatusForbidden, http.StatusUnauthorized:
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	case http.StatusBadRequest:
		return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
	}
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
