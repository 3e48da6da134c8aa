package api

// Error codes carried in the error envelope.
const (
	CodeInvalidCoordinates    = "INVALID_COORDINATES"
	CodeMissingIdempotencyKey = "MISSING_IDEMPOTENCY_KEY"
	CodeValidationError       = "VALIDATION_ERROR"
	CodeNoMerchantsFound      = "NO_MERCHANTS_FOUND"
	CodeResultNotFound        = "RESULT_NOT_FOUND"
	CodeUpstreamError         = "UPSTREAM_ERROR"
	CodeBackpressure          = "BACKPRESSURE"
	CodeInternalError         = "INTERNAL_ERROR"
)
