package allocator

import (
	"fmt"
	"runtime"
	"unsafe"
)

// ErrorCategory classifies a StandardError, grounded on the Orizon
// compiler's internal/errors.ErrorCategory taxonomy, specialized to the
// categories an allocator can actually raise.
type ErrorCategory string

const (
	// CategoryConfig covers bad constructor arguments (e.g. a zero or
	// negative ReserveSize).
	CategoryConfig ErrorCategory = "CONFIG"
	// CategoryOOM covers New's failure to grow the region for its initial
	// prefix area; Acquire/Resize themselves just return nil rather than
	// an error.
	CategoryOOM ErrorCategory = "OOM"
	// CategoryCorruption covers invariant violations found by Verify.
	CategoryCorruption ErrorCategory = "CORRUPTION"
	// CategoryMisuse covers invalid arguments to non-hot-path constructors,
	// e.g. a nil *tls.Config handed to NewStatsExporter.
	CategoryMisuse ErrorCategory = "MISUSE"
)

// StandardError is this package's single error type, used only by
// constructors and the debug checker, never by the hot acquire/release/
// resize path, which returns nil/ok on failure rather than an error.
type StandardError struct {
	Category ErrorCategory
	Message  string
	Context  map[string]any
	Caller   string
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("[%s] %s (at %s)", e.Category, e.Message, e.Caller)
}

func newStandardError(category ErrorCategory, message string, context map[string]any) *StandardError {
	caller := "unknown"

	if pc, _, _, ok := runtime.Caller(2); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &StandardError{Category: category, Message: message, Context: context, Caller: caller}
}

func errInvalidConfig(field string, value any) *StandardError {
	return newStandardError(CategoryConfig,
		fmt.Sprintf("invalid value for %s", field),
		map[string]any{"field": field, "value": value})
}

func errMisuse(message string, context map[string]any) *StandardError {
	return newStandardError(CategoryMisuse, message, context)
}

// CorruptionError identifies the first invariant violation Verify found.
type CorruptionError struct {
	*StandardError
	Block unsafe.Pointer
}

func errCorruption(message string, block unsafe.Pointer, context map[string]any) *CorruptionError {
	if context == nil {
		context = map[string]any{}
	}

	context["block"] = block

	return &CorruptionError{
		StandardError: newStandardError(CategoryCorruption, message, context),
		Block:         block,
	}
}
