// Package errors provides enhanced error handling with category and
// component context for the barkwatch pipeline. It wraps standard errors
// so callers can route on failure class (device, model, capture, publish)
// while keeping full errors.Is/As compatibility.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Category classifies an error by the subsystem failure mode it represents.
type Category string

const (
	CategoryConfig         Category = "configuration"
	CategoryValidation     Category = "validation"
	CategoryAudioDevice    Category = "audio-device"
	CategoryModelInit      Category = "model-init"
	CategoryModelInference Category = "model-inference"
	CategoryCaptureWrite   Category = "capture-write"
	CategoryPublish        Category = "publish"
	CategoryGeneric        Category = "generic"
)

// EnhancedError wraps an error with component, category and arbitrary context.
type EnhancedError struct {
	Err       error
	Component string
	Cat       Category
	Context   map[string]any
}

// Error implements the error interface.
func (e *EnhancedError) Error() string {
	var b strings.Builder
	if e.Component != "" {
		b.WriteString(e.Component)
		b.WriteString(": ")
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString("unknown error")
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap returns the wrapped error for errors.Is/As chains.
func (e *EnhancedError) Unwrap() error {
	return e.Err
}

// Builder constructs an EnhancedError fluently.
type Builder struct {
	err *EnhancedError
}

// New starts building an enhanced error around err.
func New(err error) *Builder {
	return &Builder{err: &EnhancedError{Err: err, Cat: CategoryGeneric}}
}

// Newf starts building an enhanced error from a format string.
func Newf(format string, args ...any) *Builder {
	return New(fmt.Errorf(format, args...))
}

// Component records the subsystem that produced the error.
func (b *Builder) Component(name string) *Builder {
	b.err.Component = name
	return b
}

// Category records the failure class.
func (b *Builder) Category(cat Category) *Builder {
	b.err.Cat = cat
	return b
}

// Context attaches a key/value pair for diagnostics.
func (b *Builder) Context(key string, value any) *Builder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]any)
	}
	b.err.Context[key] = value
	return b
}

// Build finalizes the enhanced error.
func (b *Builder) Build() error {
	return b.err
}

// GetCategory returns the category of err if it is (or wraps) an
// EnhancedError, CategoryGeneric otherwise.
func GetCategory(err error) Category {
	var ee *EnhancedError
	if errors.As(err, &ee) {
		return ee.Cat
	}
	return CategoryGeneric
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, cat Category) bool {
	return GetCategory(err) == cat
}

// Is, As and Unwrap re-export the standard library helpers so callers can
// use this package as a drop-in replacement for "errors".
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func Unwrap(err error) error { return errors.Unwrap(err) }
