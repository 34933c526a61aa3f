package apiclient

import "time"

const (
	// DefaultTimeout is the standard timeout for backend calls
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit paces outbound requests (requests per second)
	DefaultRateLimit = 20

	// DefaultBurst is the limiter's bucket size
	DefaultBurst = 40
)

const (
	msgNetwork = "Network error. Please check your connection and try again."
	msgServer  = "Server error. Please try again later."
	msgDecode  = "Unexpected response from server."
)
