// Error codes reference.
//
// This file maps technical errors to user-facing messages with codes
// users can quote to support. Patterns are matched case-insensitively
// with strings.Contains; the first match wins, so specific patterns
// come before general ones.
//
// File errors (FILE001-FILE099):
//
//	FILE001 - File too large
//	FILE002 - Too many rows
//	FILE003 - Empty file
//	FILE004 - No data rows
//	FILE005 - Unreadable file
//
// Mapping errors (MAP001-MAP099):
//
//	MAP001 - Phone column not selected
//
// Run errors (RUN001-RUN099):
//
//	RUN001 - Run not found or expired
//	RUN002 - Too many concurrent imports
//	RUN003 - Run cancelled
//	RUN004 - Run timed out
//
// Campaign errors (API001-API099):
//
//	API001 - Campaign API rejected the request
//	API002 - Campaign API unreachable
//
// Rate limiting (RATE001):
//
//	RATE001 - Too many requests
//
// ERR000 is the fallback when nothing matches; check the server logs
// for the underlying error.
package pipeline

import (
	"fmt"
	"strings"
)

// UserMessage is a user-facing error with actionable guidance.
type UserMessage struct {
	Message string // what happened
	Action  string // what to do about it
	Code    string // support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{
		pattern: "exceeds size limit",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller pieces and import them separately",
			Code:    "FILE001",
		},
	},
	{
		pattern: "exceeds row limit",
		msg: UserMessage{
			Message: "File has too many rows",
			Action:  "Split the lead list into smaller files",
			Code:    "FILE002",
		},
	},
	{
		pattern: "file is empty",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Upload a CSV or Excel file with a header row and data",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no data rows",
		msg: UserMessage{
			Message: "The file has headers but no data rows",
			Action:  "Add lead rows below the header and try again",
			Code:    "FILE004",
		},
	},
	{
		pattern: "parse csv",
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Save the file as CSV or .xlsx and try again",
			Code:    "FILE005",
		},
	},
	{
		pattern: "open workbook",
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Save the file as CSV or .xlsx and try again",
			Code:    "FILE005",
		},
	},
	{
		pattern: "phone column",
		msg: UserMessage{
			Message: "No phone column selected",
			Action:  "Pick the column that holds phone numbers before importing",
			Code:    "MAP001",
		},
	},
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "Import session not found",
			Action:  "The import may have expired. Start a new import",
			Code:    "RUN001",
		},
	},
	{
		pattern: "too many concurrent imports",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Wait a moment and try again",
			Code:    "RUN002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Import was cancelled",
			Action:  "Start a new import when ready",
			Code:    "RUN003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Import timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "RUN004",
		},
	},
	{
		pattern: "campaign api error",
		msg: UserMessage{
			Message: "The campaign service rejected the request",
			Action:  "Check the campaign details and API key, then try again",
			Code:    "API001",
		},
	},
	{
		pattern: "request failed",
		msg: UserMessage{
			Message: "Could not reach the campaign service",
			Action:  "Try again in a few moments",
			Code:    "API002",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-facing message. If no
// pattern matches, the ERR000 fallback is returned.
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

// FormatUserError renders an error as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matched a known pattern rather than
// the generic fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
