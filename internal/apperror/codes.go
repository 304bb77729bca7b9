package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Chain and transport error codes
const (
	CodeRPCConnectionFailed Code = "RPC_CONNECTION_FAILED"
	CodeRPCSubscribeFailed  Code = "RPC_SUBSCRIBE_FAILED"
	CodeRPCError            Code = "RPC_ERROR"
	CodeBlockNotFound       Code = "BLOCK_NOT_FOUND"
	CodeGasPriceUnavailable Code = "GAS_PRICE_UNAVAILABLE"

	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"

	CodeBusConnectionFailed Code = "BUS_CONNECTION_FAILED"
	CodeBusPublishFailed    Code = "BUS_PUBLISH_FAILED"
	CodeStorageError        Code = "STORAGE_ERROR"
	CodeReplaySourceError   Code = "REPLAY_SOURCE_ERROR"
	CodeReferencePriceError Code = "REFERENCE_PRICE_ERROR"
)

// Market state and decision pipeline error codes
const (
	CodeInvalidFeature        Code = "INVALID_FEATURE"
	CodeStaleData             Code = "STALE_DATA"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodePolicyViolation       Code = "POLICY_VIOLATION"
	CodeDetectorFailure       Code = "DETECTOR_FAILURE"
	CodeInternalInvariant     Code = "INTERNAL_INVARIANT"
	CodeCycleAborted          Code = "CYCLE_ABORTED"
	CodeInvalidStrategy       Code = "INVALID_STRATEGY"

	// Feedback
	CodeOutcomeNotFound        Code = "OUTCOME_NOT_FOUND"
	CodeOutcomeAlreadyRecorded Code = "OUTCOME_ALREADY_RECORDED"

	// Circuit breaker errors
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen Code = "CIRCUIT_HALF_OPEN"
)
