package schema

import "fmt"

// ValidationSeverity tells blocking problems apart from advisories.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue points at one field of a block, e.g. "options.placa".
// Path is empty for problems with the block as a whole.
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

func (i ValidationIssue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// ValidationResult collects what the structural and semantic block checks
// found. A block with warnings only can still be dispatched.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) AddError(path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{Path: path, Code: code, Message: message, Severity: SeverityError})
}

func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{Path: path, Code: code, Message: message, Severity: SeverityWarning})
}

// ToError folds the errors into one VALIDATION_ERROR, or returns nil for a
// valid block. A single error keeps its field path in the message.
func (r *ValidationResult) ToError() error {
	var msg string
	switch len(r.Errors) {
	case 0:
		return nil
	case 1:
		msg = r.Errors[0].String()
	default:
		msg = fmt.Sprintf("block has %d invalid fields", len(r.Errors))
	}
	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{"errors": r.Errors, "warnings": r.Warnings})
}
