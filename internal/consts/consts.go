package consts

import "time"

// LLM default configurations
const (
	// DefaultMaxTokens is the default maximum tokens for LLM responses
	DefaultMaxTokens = 1024
)

// Session loop limits
const (
	// DefaultMaxRounds is the maximum number of model rounds in one session
	DefaultMaxRounds = 20
	// DefaultMaxErrors is the maximum number of consecutive recoverable
	// command errors before a session is aborted
	DefaultMaxErrors = 3
)

// Timeouts for various operations
const (
	// Timeout2Minutes is a 2 minute timeout
	Timeout2Minutes = 2 * time.Minute
)
