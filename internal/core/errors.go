package core

// errors.go defines the stage error taxonomy shared by every pipeline stage.
//
// Each stage fails with exactly one of these types so the orchestrator can
// report the failing stage and a stable code without importing the stage:
//
//	IngestError        ING001-ING005  source file missing, unreadable, malformed
//	TransformError     TRN001-TRN002  cleaning produced an invalid or empty result
//	NormalizationError NRM001-NRM004  referential-integrity guarantee violated
//	LoadError          LOD001-LOD007  constraint violation or connectivity failure
//	FetchError         SRC001-SRC005  remote dataset could not be fetched or cached
//
// All types unwrap to their cause, so errors.Is and errors.As see through them.

import (
	"errors"
	"fmt"
)

// Error codes reported in the run summary.
const (
	CodeSourceMissing    = "ING001"
	CodeSourceUnreadable = "ING002"
	CodeMalformedCSV     = "ING003"
	CodeEmptySource      = "ING004"
	CodeSchemaMismatch   = "ING005"

	CodeMissingColumns = "TRN001"
	CodeEmptyResult    = "TRN002"
	CodeInvalidRules   = "TRN003"

	CodeOrphanCustomer   = "NRM001"
	CodeOrphanProduct    = "NRM002"
	CodeDuplicateItem    = "NRM003"
	CodeNothingToProcess = "NRM004"

	CodeConnection   = "LOD001"
	CodeDuplicateKey = "LOD002"
	CodeForeignKey   = "LOD003"
	CodeNotNull      = "LOD004"
	CodeSchema       = "LOD005"
	CodeVerification = "LOD006"
	CodeLoadFailed   = "LOD007"

	CodeNoCredentials  = "SRC001"
	CodeRemoteStatus   = "SRC002"
	CodeArchiveContent = "SRC003"
	CodeTransfer       = "SRC004"
	CodeCacheInvalid   = "SRC005"

	CodeUnknown = "ERR000"
)

// Coded is implemented by every stage error.
type Coded interface {
	error
	ErrorCode() string
}

// IngestError reports a bad or missing source file.
type IngestError struct {
	Path string
	Line int // 0 when the failure is not tied to a line
	Code string
	Err  error
}

func (e *IngestError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("ingest %s line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("ingest %s: %v", e.Path, e.Err)
}

func (e *IngestError) Unwrap() error     { return e.Err }
func (e *IngestError) ErrorCode() string { return e.Code }

// TransformError reports that cleaning could not produce a usable result.
type TransformError struct {
	Rule string
	Code string
	Err  error
}

func (e *TransformError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("transform (%s): %v", e.Rule, e.Err)
	}
	return fmt.Sprintf("transform: %v", e.Err)
}

func (e *TransformError) Unwrap() error     { return e.Err }
func (e *TransformError) ErrorCode() string { return e.Code }

// NormalizationError reports a fact row that cannot be tied to its dimensions.
type NormalizationError struct {
	Relation string
	Keys     []string // offending keys, capped by the caller
	Code     string
	Err      error
}

func (e *NormalizationError) Error() string {
	if len(e.Keys) > 0 {
		return fmt.Sprintf("normalize %s: %v (keys: %v)", e.Relation, e.Err, e.Keys)
	}
	return fmt.Sprintf("normalize %s: %v", e.Relation, e.Err)
}

func (e *NormalizationError) Unwrap() error     { return e.Err }
func (e *NormalizationError) ErrorCode() string { return e.Code }

// LoadError reports a failed database load. The transaction has been rolled back.
type LoadError struct {
	Op    string
	Table string
	Code  string
	Err   error
}

func (e *LoadError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("load %s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Op, e.Err)
}

func (e *LoadError) Unwrap() error     { return e.Err }
func (e *LoadError) ErrorCode() string { return e.Code }

// FetchError reports that the remote dataset could not be fetched into the cache.
type FetchError struct {
	Dataset string
	Code    string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Dataset, e.Err)
}

func (e *FetchError) Unwrap() error     { return e.Err }
func (e *FetchError) ErrorCode() string { return e.Code }

// ErrorCode returns the stable code carried by err, or CodeUnknown.
// Returns "" for a nil error.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var c Coded
	if errors.As(err, &c) && c.ErrorCode() != "" {
		return c.ErrorCode()
	}
	return MapError(err).Code
}
