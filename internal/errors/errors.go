// Package errors provides the structured error type returned by the report
// pipeline. Every terminal failure carries the stage it happened in, a
// category shown to callers and a stable code for tests and metrics.
package errors

import (
	"errors"
	"fmt"
)

// Stage is one state of the pipeline driver.
type Stage string

const (
	StageReceiveRequest  Stage = "RECEIVE_REQUEST"
	StageValidateDate    Stage = "VALIDATE_DATE_NOT_FUTURE"
	StageResolveNetwork  Stage = "RESOLVE_AD_NETWORK"
	StageFormatDate      Stage = "FORMAT_DATE_FOR_NETWORK"
	StageFetch           Stage = "FETCH"
	StageSchemaNormalize Stage = "SCHEMA_NORMALIZE"
	StageRowValidate     Stage = "ROW_VALIDATE"
	StageCurrencyResolve Stage = "CURRENCY_RESOLVE"
	StageAggregate       Stage = "AGGREGATE"
	StageAttachKeys      Stage = "ATTACH_KEYS"
	StagePersist         Stage = "PERSIST"
	StageDone            Stage = "DONE"
)

// Category classifies failures for the external caller.
type Category string

const (
	CategoryRequest     Category = "REQUEST"
	CategoryNetwork     Category = "NETWORK"
	CategoryFetch       Category = "FETCH"
	CategorySchema      Category = "SCHEMA"
	CategoryCurrency    Category = "CURRENCY"
	CategoryAggregation Category = "AGGREGATION"
	CategoryPersist     Category = "PERSIST"
	CategoryInternal    Category = "INTERNAL"
)

const (
	// Request codes
	CodeInvalidDate = "INVALID_DATE"
	CodeFutureDate  = "FUTURE_DATE"

	// Network codes
	CodeUnknownNetwork    = "UNKNOWN_NETWORK"
	CodeInvalidDateFormat = "INVALID_DATE_FORMAT"

	// Fetch codes
	CodeFetchFailed = "FETCH_FAILED"

	// Schema codes
	CodeColumnMismatch = "COLUMN_MISMATCH"
	CodeEmptyReport    = "EMPTY_REPORT"
	CodeRaggedRow      = "RAGGED_ROW"

	// Currency codes
	CodeInvalidRevenue = "INVALID_REVENUE"

	// Aggregation codes
	CodeMalformedTable = "MALFORMED_TABLE"

	// Persist codes
	CodeInvalidShape = "INVALID_SHAPE"
	CodeUpsertFailed = "UPSERT_FAILED"

	CodeUnexpected = "UNEXPECTED"
)

type PipelineError struct {
	Stage    Stage
	Category Category
	Code     string
	Message  string
	Cause    error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// WithStage returns a copy of the error bound to the given stage.
func (e *PipelineError) WithStage(stage Stage) *PipelineError {
	cp := *e
	cp.Stage = stage
	return &cp
}

func New(category Category, code, message string) *PipelineError {
	return &PipelineError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

func Wrap(category Category, code, message string, cause error) *PipelineError {
	return &PipelineError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// GetCategory extracts the category from an error chain.
// Errors that are not a PipelineError are reported as INTERNAL.
func GetCategory(err error) Category {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return CategoryInternal
}

func GetCode(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

func GetStage(err error) Stage {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return ""
}

// Sentinels usable with errors.Is.
var (
	ErrSchema      = New(CategorySchema, CodeColumnMismatch, "schema mismatch")
	ErrAggregation = New(CategoryAggregation, CodeMalformedTable, "aggregation failed")
)

func NewSchemaError(code, message string) *PipelineError {
	return New(CategorySchema, code, message).WithStage(StageSchemaNormalize)
}

func NewAggregationError(message string, cause error) *PipelineError {
	return Wrap(CategoryAggregation, CodeMalformedTable, message, cause).WithStage(StageAggregate)
}

func NewCurrencyError(message string, cause error) *PipelineError {
	return Wrap(CategoryCurrency, CodeInvalidRevenue, message, cause).WithStage(StageCurrencyResolve)
}
