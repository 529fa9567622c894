package errutil

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/bruhbot/pkg/log"
)

// ErrorCategory represents different types of errors in the system
type ErrorCategory string

const (
	CategoryDiscord    ErrorCategory = "discord"
	CategoryConfig     ErrorCategory = "config"
	CategoryStorage    ErrorCategory = "storage"
	CategoryCommand    ErrorCategory = "command"
	CategoryValidation ErrorCategory = "validation"
	CategoryNetwork    ErrorCategory = "network"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorSeverity represents the severity level of errors
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// ServiceError represents a standardized error in the system
type ServiceError struct {
	Category    ErrorCategory
	Severity    ErrorSeverity
	Operation   string
	Component   string
	Cause       error
	Recoverable bool
	// Code is the Discord JSON error code or HTTP status when known.
	Code int
}

func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s.%s: %v", e.Category, e.Severity, e.Component, e.Operation, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s.%s failed", e.Category, e.Severity, e.Component, e.Operation)
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// ClassifyDiscordError wraps err with category, severity and whether a retry
// could succeed. Returns nil for a nil error.
func ClassifyDiscordError(operation, component string, err error) *ServiceError {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}

	out := &ServiceError{
		Category:    CategoryDiscord,
		Operation:   operation,
		Component:   component,
		Cause:       err,
		Severity:    SeverityMedium,
		Recoverable: true,
	}

	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		if isNonRecoverableText(err) {
			out.Recoverable = false
			out.Severity = SeverityHigh
		}
		return out
	}

	status := 0
	if restErr.Response != nil {
		status = restErr.Response.StatusCode
	}
	out.Code = status
	if restErr.Message != nil && restErr.Message.Code != 0 {
		out.Code = restErr.Message.Code
	}

	switch {
	case status == http.StatusTooManyRequests:
		out.Severity = SeverityMedium
	case status >= 500:
		out.Severity = SeverityCritical
	case status >= 400:
		out.Severity = SeverityHigh
		out.Recoverable = false
	}
	return out
}

// IsRecoverable reports whether retrying the failed operation may succeed.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	return ClassifyDiscordError("", "", err).Recoverable
}

func isNonRecoverableText(err error) bool {
	s := strings.ToLower(err.Error())
	for _, p := range []string{"permission denied", "unauthorized", "not found", "invalid token"} {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// HandleDiscordError executes fn and logs any error that occurs as a Discord-related error.
// It returns whatever error fn returns (unmodified), after logging it.
func HandleDiscordError(operation string, fn func() error) error {
	if fn == nil {
		return fmt.Errorf("nil function provided")
	}
	err := fn()
	if err == nil {
		return nil
	}
	se := ClassifyDiscordError(operation, "discord", err)
	log.DiscordLogger().Error("Discord operation failed",
		"operation", operation,
		"severity", se.Severity,
		"recoverable", se.Recoverable,
		"error", err,
	)
	return err
}

// HandleConfigError executes fn and logs any error that occurs as a configuration-related error.
// It returns a wrapped error with context about the operation and path.
func HandleConfigError(operation, path string, fn func() error) error {
	if fn == nil {
		return fmt.Errorf("nil function provided")
	}
	err := fn()
	if err == nil {
		return nil
	}
	log.ApplicationLogger().Error("Configuration operation failed", "operation", operation, "path", path, "error", err)
	return fmt.Errorf("%s (%s): %w", operation, path, err)
}

// Guard runs fn and converts a panic into a logged error so a single bad
// event cannot take down the gateway loop.
func Guard(component string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.ApplicationLogger().Error("Recovered from panic in handler",
				slog.String("component", component),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	fn()
}
