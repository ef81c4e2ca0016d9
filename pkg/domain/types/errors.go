package types

import "github.com/m-mizutani/goerr/v2"

// Error tags classify failures so the HTTP boundary can map them to a
// status code without inspecting messages.
var (
	// TagValidation marks malformed input: bad ThreadID, unparsable
	// webhook body. Mapped to 400.
	TagValidation = goerr.NewTag("validation")

	// TagAuth marks failed request verification. Mapped to 401.
	TagAuth = goerr.NewTag("auth")

	// TagNotImplemented marks operations a platform cannot support.
	TagNotImplemented = goerr.NewTag("not_implemented")
)

// IsValidation reports whether err is tagged as a validation failure
func IsValidation(err error) bool {
	return goerr.HasTag(err, TagValidation)
}

// IsAuth reports whether err is tagged as an authentication failure
func IsAuth(err error) bool {
	return goerr.HasTag(err, TagAuth)
}

// IsNotImplemented reports whether err is tagged as not implemented
func IsNotImplemented(err error) bool {
	return goerr.HasTag(err, TagNotImplemented)
}

// NewNotImplemented builds the error adapters return for operations their
// platform has no API for.
func NewNotImplemented(platform Platform, op string) error {
	return goerr.New("operation not supported by platform",
		goerr.V("platform", platform),
		goerr.V("operation", op),
		goerr.T(TagNotImplemented))
}
