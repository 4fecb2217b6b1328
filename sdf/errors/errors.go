// Copyright 2024 The usdlite Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errors defines the error taxonomy shared by the scene
// description data model and the composition engine, following the
// shape of cue/errors: a small Error interface, Is/As-friendly
// wrapping over the stdlib errors package, and a List type that
// accumulates non-fatal warnings instead of aborting a computation.
package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Error is the common interface implemented by every error kind this
// package defines.
type Error interface {
	error
	// Path is the scene-description path the error concerns, or ""
	// when not applicable.
	Path() string
}

// ParseError reports malformed input from a reader, produced before
// the composition engine runs.
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("parse error: %s", e.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
}
func (e *ParseError) Path() string { return "" }

// PathError reports an attempt to form a path from invalid text. It is
// thrown synchronously by sdf/path.
type PathError struct {
	Text    string
	Message string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Text, e.Message)
}
func (e *PathError) Path() string { return e.Text }

// ResolverError reports a Resolver I/O failure.
type ResolverError struct {
	AssetPath      string
	FromIdentifier string
	Err            error
}

func (e *ResolverError) Error() string {
	return fmt.Sprintf("resolving %q from %q: %v", e.AssetPath, e.FromIdentifier, e.Err)
}
func (e *ResolverError) Path() string  { return "" }
func (e *ResolverError) Unwrap() error { return e.Err }

// CompositionWarning reports a non-fatal composition anomaly: a
// missing defaultPrim, a detected cycle, a missing arc target, or an
// unrecognized metadata shape. The engine logs (optionally) and
// continues; callers should not treat these as failures.
type CompositionWarning struct {
	PrimPath string
	Message  string
}

func (e *CompositionWarning) Error() string {
	if e.PrimPath == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.PrimPath, e.Message)
}
func (e *CompositionWarning) Path() string { return e.PrimPath }

// Internal reports a violated invariant: a bug in the engine, not in
// authored data. Composition halts when this is returned.
type Internal struct {
	Message string
}

func (e *Internal) Error() string { return fmt.Sprintf("internal error: %s", e.Message) }
func (e *Internal) Path() string  { return "" }

// List accumulates CompositionWarnings across a single composition
// call without aborting it, the way cue/errors.list accumulates
// diagnostics across a build.
type List struct {
	warnings []*CompositionWarning

	// Logger, when set, receives a structured slog.Warn record for
	// every warning added, in addition to accumulation. Composition
	// never fails because of a logged warning; this is purely an
	// observability hook.
	Logger *slog.Logger
}

// Add appends a warning to the list and, if Logger is set, emits it as
// a structured log record.
func (l *List) Add(w *CompositionWarning) {
	l.warnings = append(l.warnings, w)
	if l.Logger != nil {
		l.Logger.Warn("composition warning", "primPath", w.PrimPath, "message", w.Message)
	}
}

// Addf is a convenience wrapper for Add(&CompositionWarning{...}).
func (l *List) Addf(primPath, format string, args ...interface{}) {
	l.Add(&CompositionWarning{PrimPath: primPath, Message: fmt.Sprintf(format, args...)})
}

// Warnings returns the accumulated warnings in the order they were added.
func (l *List) Warnings() []*CompositionWarning { return l.warnings }

// Len reports how many warnings have been accumulated.
func (l *List) Len() int { return len(l.warnings) }

func (l *List) Error() string {
	msgs := make([]string, len(l.warnings))
	for i, w := range l.warnings {
		msgs[i] = w.Error()
	}
	return strings.Join(msgs, "\n")
}

// Is mirrors the stdlib errors.Is for convenience. The error kinds in
// this package define no Is method, so a target matches only an error
// in err's chain that is == to it; use As to test for an error kind.
func Is(err, target error) bool { return errors.Is(err, target) }

// As mirrors the stdlib errors.As for convenience.
func As(err error, target interface{}) bool { return errors.As(err, target) }
