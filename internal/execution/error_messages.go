package execution

import (
	"fmt"
	"strings"
)

// UserFriendlyError turns a classified call failure into the message an API
// block writes to its error output.
func UserFriendlyError(err *ExecutionError) string {
	if err == nil {
		return ""
	}

	switch {
	case err.StatusCode == 429:
		if err.RetryAfter > 0 {
			return fmt.Sprintf("The service is rate-limiting requests (retry after %d seconds).", err.RetryAfter)
		}
		return "The service is rate-limiting requests."
	case err.StatusCode >= 500 && err.StatusCode < 600:
		return fmt.Sprintf("The service is temporarily unavailable (HTTP %d).", err.StatusCode)
	case err.StatusCode == 401:
		return "The service rejected the credentials. Check the API key input."
	case err.StatusCode == 403:
		return "Access denied by the service. Check that the API key has the required permissions."
	case err.StatusCode == 404:
		return "The endpoint was not found. Check the URL and path inputs."
	case err.StatusCode == 400 || err.StatusCode == 422:
		return fmt.Sprintf("The service rejected the request: %s", truncateString(err.Message, 200))
	case err.StatusCode == 402 || containsAny(err.Message, "quota", "billing", "insufficient_quota"):
		return "The account for this service has reached its spending limit."
	case containsAny(err.Message, "timeout", "deadline exceeded", "timed out"):
		return "The request took too long and was abandoned."
	case containsAny(err.Message, "connection refused", "connection reset", "network", "no such host"):
		return "Could not reach the service. Check the URL and network connectivity."
	case containsAny(err.Message, "certificate", "tls:", "x509:"):
		return "TLS/certificate error while connecting to the service."
	}

	return truncateString(err.Message, 200)
}

func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
