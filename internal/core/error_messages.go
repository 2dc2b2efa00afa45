package core

// # Error Codes Reference
//
// Every code below appears in the run summary as error_code and in the
// operator-facing message printed by the CLI.
//
// # Ingest (ING001-ING099)
//
//	ING001 - Source file not found
//	ING002 - Source file could not be read
//	ING003 - Source file is not valid CSV
//	ING004 - Source file is empty
//	ING005 - Source columns do not match the expected layout
//
// # Transform (TRN001-TRN099)
//
//	TRN001 - Mandatory columns absent after cleaning
//	TRN002 - No rows survived cleaning
//	TRN003 - Quality rules file or settings invalid
//
// # Normalize (NRM001-NRM099)
//
//	NRM001 - Order line references a customer missing from customers
//	NRM002 - Order line references a product missing from products
//	NRM003 - Item id appears on more than one order line
//	NRM004 - Nothing to normalize
//
// # Load (LOD001-LOD099)
//
//	LOD001 - Database unreachable or connection lost
//	LOD002 - Duplicate primary key
//	LOD003 - Missing referenced dimension row
//	LOD004 - Required value missing
//	LOD005 - Schema could not be created
//	LOD006 - Post-load verification failed
//	LOD007 - Load failed for another reason
//
// # Source (SRC001-SRC099)
//
//	SRC001 - Kaggle credentials not configured
//	SRC002 - Kaggle returned an unexpected status
//	SRC003 - Downloaded archive does not contain the dataset file
//	SRC004 - Download interrupted
//	SRC005 - Fetched file failed the cache validity checks

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage is an operator-friendly description of a failure.
type UserMessage struct {
	Message string // What went wrong
	Action  string // What to do about it
	Code    string // Reference code
}

var messages = map[string]UserMessage{
	CodeSourceMissing:    {Message: "Source file not found", Action: "Run with --force-extract or place sales.csv under data/raw"},
	CodeSourceUnreadable: {Message: "Source file could not be read", Action: "Check file permissions"},
	CodeMalformedCSV:     {Message: "Source file is not valid CSV", Action: "Re-fetch the dataset with --force-extract"},
	CodeEmptySource:      {Message: "Source file is empty", Action: "Re-fetch the dataset with --force-extract"},
	CodeSchemaMismatch:   {Message: "Source columns do not match the expected layout", Action: "Check that the dataset export has not changed"},

	CodeMissingColumns: {Message: "Mandatory columns absent after cleaning", Action: "Check required_columns in the rules file"},
	CodeEmptyResult:    {Message: "No rows survived cleaning", Action: "Review the dropped-row counts in the summary"},
	CodeInvalidRules:   {Message: "Quality rules are invalid", Action: "Fix the rules file or QUALITY_TOLERANCE and rerun"},

	CodeOrphanCustomer:   {Message: "Order line references an unknown customer", Action: "Report this run; the cleaning rules are inconsistent"},
	CodeOrphanProduct:    {Message: "Order line references an unknown product", Action: "Report this run; the cleaning rules are inconsistent"},
	CodeDuplicateItem:    {Message: "Item id appears on more than one order line", Action: "Check dedup_key in the rules file"},
	CodeNothingToProcess: {Message: "Nothing to normalize", Action: "Review the dropped-row counts in the summary"},

	CodeConnection:   {Message: "Unable to connect to database", Action: "Check DATABASE_URL and that PostgreSQL is running"},
	CodeDuplicateKey: {Message: "A record with this key already exists", Action: "Check dedup_key in the rules file"},
	CodeForeignKey:   {Message: "Referenced record does not exist", Action: "Report this run; dimensions must load before facts"},
	CodeNotNull:      {Message: "Required value is missing", Action: "Review the validity filters"},
	CodeSchema:       {Message: "Database schema could not be created", Action: "Check that the database user may create tables"},
	CodeVerification: {Message: "Loaded data failed verification", Action: "Nothing was committed; inspect the logs"},
	CodeLoadFailed:   {Message: "Database load failed", Action: "Nothing was committed; inspect the logs"},

	CodeNoCredentials:  {Message: "Kaggle credentials are not configured", Action: "Set KAGGLE_USERNAME and KAGGLE_KEY"},
	CodeRemoteStatus:   {Message: "Kaggle rejected the download", Action: "Check the credentials and dataset slug"},
	CodeArchiveContent: {Message: "Dataset archive is missing the expected file", Action: "Check SOURCE_FILE"},
	CodeTransfer:       {Message: "Dataset download was interrupted", Action: "Please try again"},
	CodeCacheInvalid:   {Message: "Fetched dataset failed validity checks", Action: "Check SOURCE_MIN_FILE_SIZE"},
}

// errorPattern maps a substring in an untyped error message to a user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is consulted, in order, for errors that carry no code.
var errorPatterns = []errorPattern{
	{pattern: "context canceled", msg: UserMessage{Message: "Run was canceled", Action: "Nothing was committed", Code: "ERR001"}},
	{pattern: "deadline exceeded", msg: UserMessage{Message: "Operation timed out", Action: "Raise LOAD_TIMEOUT or SOURCE_DOWNLOAD_TIMEOUT", Code: "ERR002"}},
	{pattern: "connection refused", msg: UserMessage{Message: "Unable to connect to database", Action: "Check DATABASE_URL and that PostgreSQL is running", Code: CodeConnection}},
	{pattern: "no such file", msg: UserMessage{Message: "File not found", Action: "Check the configured paths", Code: CodeSourceMissing}},
	{pattern: "permission denied", msg: UserMessage{Message: "Permission denied", Action: "Check file permissions under DATA_DIR", Code: CodeSourceUnreadable}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Inspect the logs for details",
	Code:    CodeUnknown,
}

// MapError converts an error to an operator-facing message.
// Typed stage errors resolve through their code; anything else is matched
// against known patterns (case-insensitive), falling back to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var c Coded
	if errors.As(err, &c) {
		if msg, ok := messages[c.ErrorCode()]; ok {
			msg.Code = c.ErrorCode()
			return msg
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

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
