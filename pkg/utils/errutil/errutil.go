package errutil

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/utils/logging"
)

var sentryEnabled atomic.Bool

// EnableSentry turns on Sentry capture for Handle/HandleHTTP. The caller is
// responsible for sentry.Init and flushing on shutdown.
func EnableSentry() {
	sentryEnabled.Store(true)
}

// Handle logs the error with a message and reports it to Sentry when enabled.
// It returns the error as-is so callers can keep propagating it.
func Handle(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}

	logger := logging.From(ctx)

	var ge *goerr.Error
	if errors.As(err, &ge) {
		logger.Error(msg,
			"error", err.Error(),
			"values", ge.Values(),
			"stack", ge.Stacks(),
		)
	} else {
		logger.Error(msg, "error", err.Error())
	}

	if sentryEnabled.Load() {
		sentry.CaptureException(err)
	}

	return err
}

// HandleHTTP logs the error and writes an HTTP error response. The response
// body is the generic status text only: auth and parse failures must not be
// distinguishable by content.
func HandleHTTP(ctx context.Context, w http.ResponseWriter, err error, statusCode int) {
	if err == nil {
		return
	}

	logger := logging.From(ctx)

	var ge *goerr.Error
	if errors.As(err, &ge) {
		logger.Error("HTTP error",
			"status", statusCode,
			"error", err.Error(),
			"values", ge.Values(),
		)
	} else {
		logger.Error("HTTP error",
			"status", statusCode,
			"error", err.Error(),
		)
	}

	if sentryEnabled.Load() && statusCode >= http.StatusInternalServerError {
		sentry.CaptureException(err)
	}

	http.Error(w, http.StatusText(statusCode), statusCode)
}
