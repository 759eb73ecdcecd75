// # Error Codes Reference
//
// User-facing messages carry a code that can be quoted to support staff.
// Typed errors are matched first with errors.Is. Errors that only reach us as
// text (driver messages, wrapped library errors) fall back to substring
// patterns.
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate: A customer or product with this key already exists
//	        Action: Use the existing record or choose another name
//	        Matches: store.ErrDuplicate, "duplicate key"
//
//	DB003 - In use: The record is still referenced by sales
//	        Action: Delete the related sales first
//	        Matches: store.ErrInUse, "violates foreign key"
//
//	DB004 - Connection refused: Unable to connect to database
//	        Action: Please try again in a few moments
//	        Matches: "connection refused"
//
//	DB005 - Connection reset: Database connection was interrupted
//	        Action: Please try again
//	        Matches: "connection reset"
//
//	DB007 - Deadlock: Database was busy with conflicting operations
//	        Action: Please try again
//	        Matches: "deadlock"
//
//	DB008 - Not found: The requested record does not exist
//	        Action: Check the id and try again
//	        Matches: store.ErrNotFound
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL003 - Invalid input: A field is missing or out of range
//	         Action: Correct the highlighted value and resubmit
//	         Matches: ErrInvalidInput
//
//	VAL004 - Missing column: A required column is missing from the file
//	         Action: Include customer email, product, quantity and unit price columns
//	         Matches: sheet.ErrMissingColumns
//
//	VAL007 - Insufficient stock: Not enough units to complete the sale
//	         Action: Lower the quantity or restock the product
//	         Matches: store.ErrInsufficientStock
//
//	VAL008 - Email rejected: The email address cannot be used for an account
//	         Action: Check the address or use another domain
//	         Matches: accounts.ErrEmailRejected
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the maximum import size
//	          Action: Split the file into smaller chunks
//	          Matches: ErrFileTooLarge, "request body too large"
//
//	FILE002 - Unreadable file: The file could not be parsed
//	          Action: Re-export the file as CSV or XLSX
//	          Matches: "parse csv", "open workbook"
//
//	FILE004 - No file: No file was selected
//	          Action: Choose a CSV or XLSX file to import
//	          Matches: ErrNoFile
//
//	FILE005 - No data: The file has no header or no data rows
//	          Action: Add a header row and at least one sale
//	          Matches: sheet.ErrNoHeader, importer.ErrNoRows
//
//	FILE006 - Unsupported format: Only .csv and .xlsx files are accepted
//	          Action: Save the file as CSV or XLSX
//	          Matches: sheet.ErrUnsupportedFormat
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - System busy: Another import is in progress
//	         Action: Wait for it to finish and try again
//	         Matches: ErrTooManyImports
//
//	IMP002 - Cancelled: The request was cancelled
//	         Action: Please try again
//	         Matches: context.Canceled
//
//	IMP004 - Timed out: The operation took too long
//	         Action: Try a smaller file or try again later
//	         Matches: context.DeadlineExceeded, "timeout"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Rate limited: Too many requests
//	          Action: Please wait a moment before trying again
//	          Matches: "rate limit"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// When a user reports ERR000, check the application logs for the request id.

package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/saleimport/internal/accounts"
	"github.com/JonMunkholm/saleimport/internal/importer"
	"github.com/JonMunkholm/saleimport/internal/sheet"
	"github.com/JonMunkholm/saleimport/internal/store"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

// errorMatch maps a typed error to a user message.
type errorMatch struct {
	target error
	msg    UserMessage
}

// errorPattern maps a lower-case substring to a user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgDuplicate = UserMessage{
		Message: "A customer or product with this key already exists",
		Action:  "Use the existing record or choose another name",
		Code:    "DB001",
	}
	msgInUse = UserMessage{
		Message: "The record is still referenced by sales",
		Action:  "Delete the related sales first",
		Code:    "DB003",
	}
	msgTooLarge = UserMessage{
		Message: "File exceeds the maximum import size",
		Action:  "Split the file into smaller chunks",
		Code:    "FILE001",
	}
	msgUnreadable = UserMessage{
		Message: "The file could not be parsed",
		Action:  "Re-export the file as CSV or XLSX",
		Code:    "FILE002",
	}
	msgNoData = UserMessage{
		Message: "The file has no header or no data rows",
		Action:  "Add a header row and at least one sale",
		Code:    "FILE005",
	}
	msgTimeout = UserMessage{
		Message: "The operation took too long",
		Action:  "Try a smaller file or try again later",
		Code:    "IMP004",
	}
)

// errorMatches is checked in order before any pattern.
var errorMatches = []errorMatch{
	{store.ErrDuplicate, msgDuplicate},
	{store.ErrInUse, msgInUse},
	{store.ErrInsufficientStock, UserMessage{
		Message: "Not enough units to complete the sale",
		Action:  "Lower the quantity or restock the product",
		Code:    "VAL007",
	}},
	{store.ErrNotFound, UserMessage{
		Message: "The requested record does not exist",
		Action:  "Check the id and try again",
		Code:    "DB008",
	}},
	{accounts.ErrEmailRejected, UserMessage{
		Message: "The email address cannot be used for an account",
		Action:  "Check the address or use another domain",
		Code:    "VAL008",
	}},
	{ErrInvalidInput, UserMessage{
		Message: "A field is missing or out of range",
		Action:  "Correct the highlighted value and resubmit",
		Code:    "VAL003",
	}},
	{sheet.ErrMissingColumns, UserMessage{
		Message: "A required column is missing from the file",
		Action:  "Include customer email, product, quantity and unit price columns",
		Code:    "VAL004",
	}},
	{ErrFileTooLarge, msgTooLarge},
	{ErrNoFile, UserMessage{
		Message: "No file was selected",
		Action:  "Choose a CSV or XLSX file to import",
		Code:    "FILE004",
	}},
	{sheet.ErrNoHeader, msgNoData},
	{importer.ErrNoRows, msgNoData},
	{sheet.ErrUnsupportedFormat, UserMessage{
		Message: "Only .csv and .xlsx files are accepted",
		Action:  "Save the file as CSV or XLSX",
		Code:    "FILE006",
	}},
	{ErrTooManyImports, UserMessage{
		Message: "Another import is in progress",
		Action:  "Wait for it to finish and try again",
		Code:    "IMP001",
	}},
	{context.Canceled, UserMessage{
		Message: "The request was cancelled",
		Action:  "Please try again",
		Code:    "IMP002",
	}},
	{context.DeadlineExceeded, msgTimeout},
}

// errorPatterns is the fallback for errors that only carry text.
// The first matching pattern wins, so specific patterns come first.
var errorPatterns = []errorPattern{
	{"duplicate key", msgDuplicate},
	{"violates foreign key", msgInUse},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB005",
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}},
	{"request body too large", msgTooLarge},
	{"parse csv", msgUnreadable},
	{"open workbook", msgUnreadable},
	{"timeout", msgTimeout},
	{"rate limit", UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
//	msg := MapError(fmt.Errorf("insert product: %w", store.ErrDuplicate))
//	// msg.Code == "DB001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, m := range errorMatches {
		if errors.Is(err, m.target) {
			return m.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError wraps err with its mapped message. It returns nil for nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
