package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Chain and transport
	CodeRPCConnectionFailed:      "Failed to connect to chain RPC endpoint",
	CodeRPCSubscribeFailed:       "Failed to subscribe to chain heads",
	CodeRPCError:                 "Chain RPC call failed",
	CodeBlockNotFound:            "Block not found",
	CodeGasPriceUnavailable:      "Gas price unavailable",
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",
	CodeBusConnectionFailed:      "Failed to connect to message bus",
	CodeBusPublishFailed:         "Failed to publish message",
	CodeStorageError:             "Storage operation failed",
	CodeReplaySourceError:        "Replay source failed",
	CodeReferencePriceError:      "Reference price feed error",

	// Market state and decision pipeline
	CodeInvalidFeature:        "Feature failed validation",
	CodeStaleData:             "Required market data is missing or stale",
	CodeInsufficientLiquidity: "Insufficient liquidity for trade size",
	CodePolicyViolation:       "Risk policy violated",
	CodeDetectorFailure:       "Detector failed",
	CodeInternalInvariant:     "Internal invariant violated",
	CodeCycleAborted:          "Decision cycle aborted",
	CodeInvalidStrategy:       "Invalid strategy configuration",

	// Feedback
	CodeOutcomeNotFound:        "No tracked decision for candidate",
	CodeOutcomeAlreadyRecorded: "Outcome already recorded for candidate",

	// Circuit breaker errors
	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",
}
