/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package errs

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Sentinel kinds. Every error built by this package is marked with its kind
// and with all of the kind's ancestors, so a single error matches e.g.
// ErrConcurrency, ErrData and ErrFramework at once. Use Is (or errors.Is from
// github.com/cockroachdb/errors) to test against an ancestor kind.
var (
	ErrFramework       = errors.New("strata error")
	ErrConfiguration   = errors.New("configuration error")
	ErrData            = errors.New("data error")
	ErrValidation      = errors.New("entity validation failed")
	ErrConcurrency     = errors.New("concurrency conflict")
	ErrNotFound        = errors.New("entity not found")
	ErrMultipleResults = errors.New("sequence contains more than one matching element")
	ErrConstraint      = errors.New("constraint violation")
	ErrUnknownInclude  = errors.New("unknown include path")
)

var ancestors = map[error][]error{
	ErrFramework:       nil,
	ErrConfiguration:   {ErrFramework},
	ErrData:            {ErrFramework},
	ErrValidation:      {ErrFramework, ErrData},
	ErrConcurrency:     {ErrFramework, ErrData},
	ErrNotFound:        {ErrFramework, ErrData},
	ErrMultipleResults: {ErrFramework, ErrData},
	ErrConstraint:      {ErrFramework, ErrData},
	ErrUnknownInclude:  {ErrFramework, ErrData},
}

// Is reports whether err carries the given kind anywhere in its chain,
// including marks attached by this package.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}

// Mark tags err with kind and every ancestor of kind.
func Mark(err error, kind error) error {
	if err == nil {
		return nil
	}
	for _, parent := range ancestors[kind] {
		err = errors.Mark(err, parent)
	}
	return errors.Mark(err, kind)
}

// Configurationf reports a missing collaborator or an invalid setting.
func Configurationf(format string, args ...interface{}) error {
	return Mark(errors.Wrapf(ErrConfiguration, format, args...), ErrConfiguration)
}

// NotFoundf reports a lookup that matched nothing.
func NotFoundf(format string, args ...interface{}) error {
	return Mark(errors.Wrapf(ErrNotFound, format, args...), ErrNotFound)
}

// MultipleResultsf reports a single-result lookup that matched more than one row.
func MultipleResultsf(format string, args ...interface{}) error {
	return Mark(errors.Wrapf(ErrMultipleResults, format, args...), ErrMultipleResults)
}

// UnknownInclude reports a relationship path that the entity does not declare.
func UnknownInclude(entity, path string) error {
	return Mark(errors.Wrapf(ErrUnknownInclude, "%s has no relation %q", entity, path), ErrUnknownInclude)
}

// Data wraps a store failure that has no more specific kind.
func Data(cause error, msg string) error {
	return Mark(errors.Wrap(cause, msg), ErrData)
}

// ValidationError aggregates the messages of every entity that failed
// validation during a single save.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: errors => %s", ErrValidation.Error(), strings.Join(e.Messages, "; "))
}

// NewValidationError builds a validation failure from the collected messages.
func NewValidationError(messages []string) error {
	return Mark(errors.WithStack(&ValidationError{Messages: messages}), ErrValidation)
}

// ConcurrencyError is returned when an update or delete affected no row
// because the row was changed or removed since it was read.
type ConcurrencyError struct {
	Entity string
	ID     any
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("%s: %s(id=%v) was modified or deleted by another writer", ErrConcurrency.Error(), e.Entity, e.ID)
}

// NewConcurrencyError builds a concurrency conflict for the given row.
func NewConcurrencyError(entity string, id any) error {
	return Mark(errors.WithStack(&ConcurrencyError{Entity: entity, ID: id}), ErrConcurrency)
}

// ConstraintError is a store-side integrity failure such as a duplicate key.
type ConstraintError struct {
	Kind  string
	Cause error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrConstraint.Error(), e.Kind, e.Cause)
}

func (e *ConstraintError) Unwrap() error { return e.Cause }

// NewConstraintError wraps a store error classified as an integrity violation.
func NewConstraintError(kind string, cause error) error {
	return Mark(errors.WithStack(&ConstraintError{Kind: kind, Cause: cause}), ErrConstraint)
}
