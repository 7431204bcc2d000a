package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrParse            = errors.New("parse error")
	ErrTransfer         = errors.New("transfer error")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrExternalTool     = errors.New("external tool error")
	ErrValidation       = errors.New("validation error")
	ErrConfiguration    = errors.New("configuration error")
	ErrNotFound         = errors.New("not found")
	ErrFilesystem       = errors.New("filesystem error")
)

// Error is a stage failure. Summary is the short text shown to users; the
// rest (stage, operation, cause, tool output) is for logs.
type Error struct {
	Marker    error
	Stage     string
	Operation string
	Summary   string
	Output    string
	Err       error
}

func (e *Error) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Summary)
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Marker, detail, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Marker, detail)
}

// Unwrap exposes both the marker and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Marker != nil {
		out = append(out, e.Marker)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Wrap builds a stage error tagged with marker, one of the sentinels above.
// summary should read well on its own in a status line.
func Wrap(marker error, stage, operation, summary string, err error) error {
	if marker == nil {
		marker = ErrTransfer
	}
	return &Error{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Summary:   strings.TrimSpace(summary),
		Err:       err,
	}
}

// WithOutput attaches captured tool output to a stage error. Errors that are
// not *Error are wrapped as external tool failures first.
func WithOutput(err error, output string) error {
	if err == nil {
		return nil
	}
	var se *Error
	if !errors.As(err, &se) {
		se = &Error{Marker: ErrExternalTool, Err: err}
		err = se
	}
	se.Output = strings.TrimSpace(output)
	return err
}

// Summary returns the user-facing explanation for err.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) && se.Summary != "" {
		return se.Summary
	}
	switch {
	case errors.Is(err, ErrRetriesExhausted):
		return "The device is too busy to send this recording; try again later"
	case errors.Is(err, ErrTransfer):
		return "Problem downloading the recording"
	case errors.Is(err, ErrExternalTool):
		return "An external tool failed while processing the recording"
	case errors.Is(err, ErrParse):
		return "The recording data could not be read"
	case errors.Is(err, ErrFilesystem):
		return "Could not write the recording to disk"
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrValidation):
		return "Check the archivist configuration"
	default:
		return "Archiving failed"
	}
}

// Details returns the full internal description of err, including any
// captured tool output.
func Details(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var se *Error
	if errors.As(err, &se) && se.Output != "" {
		msg += "\n--- tool output ---\n" + se.Output
	}
	return msg
}

// Kind returns a short stable label for err's marker, suitable for metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrRetriesExhausted):
		return "retries_exhausted"
	case errors.Is(err, ErrTransfer):
		return "transfer"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrFilesystem):
		return "filesystem"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "other"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage != "" {
		parts = append(parts, stage)
	}
	if operation != "" {
		parts = append(parts, operation)
	}
	if message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
