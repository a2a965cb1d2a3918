package main

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (bad config file, unreadable document)
	ExitDataError   = 3 // Data error (malformed input, write failure)
	ExitNotFound    = 4 // Entry or DOI not found
	ExitNoHost      = 5 // Remote service unreachable
)
