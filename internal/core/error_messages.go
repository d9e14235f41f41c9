package core

// # Error Codes Reference
//
// User-facing errors carry a code so operators can quote it to support.
//
//	DB001-DB007     Database constraints and connectivity
//	VAL001-VAL006   Cell and row validation
//	FILE001-FILE006 File decoding
//	IMP001-IMP006   Import sessions and commits
//	MAP001-MAP003   Column mapping and profiles
//	REQ001          Malformed API requests
//	RATE001         Request throttling
//	ERR000          Fallback; check the server log for the technical error
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns must precede general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Database Constraint Errors (DB001-DB003)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this number already exists",
			Action:  "Enable \"update existing\" or remove the row from the file",
			Code:    "DB001",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Review the file for repeated load or truck numbers",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Check the selected MC number or customer",
			Code:    "DB003",
		},
	},

	// =========================================================================
	// Database Connection Errors (DB004-DB007)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Re-run the import; rows already saved will be skipped or updated",
			Code:    "DB005",
		},
	},
	{
		pattern: "closed pool",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Re-run the import; rows already saved will be skipped or updated",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001-VAL006)
	// =========================================================================
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Invalid date format detected",
			Action:  "Use YYYY-MM-DD, MM/DD/YYYY, or Jan 15, 2024",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "Remove letters and use a plain decimal amount",
			Code:    "VAL002",
		},
	},
	{
		pattern: "missing required field",
		msg: UserMessage{
			Message: "A required field has no mapped column",
			Action:  "Map a column to every required field before importing",
			Code:    "VAL004",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Fill the field in the file or set a value for all rows",
			Code:    "VAL003",
		},
	},
	{
		pattern: "warning not acknowledged",
		msg: UserMessage{
			Message: "Row has unacknowledged warnings",
			Action:  "Review the warnings and acknowledge them to import these rows",
			Code:    "VAL005",
		},
	},
	{
		pattern: "must be one of",
		msg: UserMessage{
			Message: "Value is not in the allowed list",
			Action:  "Check the allowed values for this field",
			Code:    "VAL006",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE006)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller parts",
			Code:    "FILE001",
		},
	},
	{
		pattern: "unsupported file type",
		msg: UserMessage{
			Message: "File type is not supported",
			Action:  "Upload a .csv or .xlsx file",
			Code:    "FILE002",
		},
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save file as UTF-8 encoding",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a file to import",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file has no data rows",
			Action:  "Please upload a file with a header row and data",
			Code:    "FILE005",
		},
	},
	{
		pattern: "decode",
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Check that the file is a valid spreadsheet and not password protected",
			Code:    "FILE006",
		},
	},

	// =========================================================================
	// Import Errors (IMP001-IMP006)
	// =========================================================================
	{
		pattern: "import cancelled",
		msg: UserMessage{
			Message: "Import was cancelled",
			Action:  "Rows saved before cancelling were kept; re-run to finish",
			Code:    "IMP001",
		},
	},
	{
		pattern: "too many imports",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "IMP002",
		},
	},
	{
		pattern: "session not found",
		msg: UserMessage{
			Message: "Import session not found",
			Action:  "The session may have expired. Please select the file again",
			Code:    "IMP003",
		},
	},
	{
		pattern: "commit not found",
		msg: UserMessage{
			Message: "Import run not found",
			Action:  "The run may have finished a while ago. Check the imported records",
			Code:    "IMP004",
		},
	},
	{
		pattern: "commit already running",
		msg: UserMessage{
			Message: "An import is already running for this file",
			Action:  "Wait for it to finish before starting another",
			Code:    "IMP005",
		},
	},
	{
		pattern: "unknown entity",
		msg: UserMessage{
			Message: "Unknown import type",
			Action:  "Choose loads or trucks",
			Code:    "IMP006",
		},
	},

	// =========================================================================
	// Mapping (MAP001-MAP003)
	// =========================================================================
	{
		pattern: "unknown field",
		msg: UserMessage{
			Message: "Column mapped to a field that does not exist",
			Action:  "Pick a field from the list",
			Code:    "MAP001",
		},
	},
	{
		pattern: "profile not found",
		msg: UserMessage{
			Message: "Mapping profile not found",
			Action:  "Refresh the profile list and pick another",
			Code:    "MAP002",
		},
	},
	{
		pattern: "profile name is required",
		msg: UserMessage{
			Message: "The profile needs a name",
			Action:  "Enter a name and save again",
			Code:    "MAP003",
		},
	},

	// =========================================================================
	// Generic timeouts and throttling
	// =========================================================================
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try importing a smaller file or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try importing a smaller file or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "invalid request body",
		msg: UserMessage{
			Message: "The request could not be read",
			Action:  "Check the JSON body and try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// The first matching pattern wins; ERR000 is returned when nothing matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates "Message (Code: XXX). Action" for display.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
