package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Configuration (C100-C199)
	"C100": {
		Category:   CategoryConfig,
		Message:    "Configuration file not found",
		Suggestion: "Check the --config path or omit it to use the defaults",
	},
	"C101": {
		Category:   CategoryConfig,
		Message:    "Failed to parse configuration file",
		Suggestion: "collabcode.json must be JSON; comments and trailing commas are allowed",
	},
	"C102": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
	},
	"C103": {
		Category:   CategoryConfig,
		Message:    "Invalid environment override",
		Suggestion: "Durations use Go syntax such as 30s or 1m; numbers must be integers",
	},

	// Relay and session (C200-C299)
	"C200": {
		Category:   CategoryConnection,
		Message:    "Relay server failed",
		Suggestion: "Check that the listen address is free",
	},
	"C201": {
		Category:   CategoryConnection,
		Message:    "Could not connect to relay",
		Suggestion: "Check that the relay is running and the URL is correct, then run the command again",
	},
	"C202": {
		Category:   CategoryConnection,
		Message:    "Connection to relay lost",
		Suggestion: "Run collabcode join again to reconnect",
	},

	// Documents (C300-C399)
	"C300": {
		Category: CategoryDocument,
		Message:  "Could not open shared file",
	},
}

// GetAllCodes returns every registered code in order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template registered for code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
