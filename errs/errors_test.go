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
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHierarchy(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		matches []error
		misses  []error
	}{
		{
			name:    "configuration",
			err:     Configurationf("cache capacity must be positive"),
			matches: []error{ErrConfiguration, ErrFramework},
			misses:  []error{ErrData, ErrNotFound},
		},
		{
			name:    "not found",
			err:     NotFoundf("color id=%d", 7),
			matches: []error{ErrNotFound, ErrData, ErrFramework},
			misses:  []error{ErrConcurrency, ErrConfiguration},
		},
		{
			name:    "multiple results",
			err:     MultipleResultsf("color"),
			matches: []error{ErrMultipleResults, ErrData, ErrFramework},
			misses:  []error{ErrNotFound},
		},
		{
			name:    "concurrency",
			err:     NewConcurrencyError("Color", 3),
			matches: []error{ErrConcurrency, ErrData, ErrFramework},
			misses:  []error{ErrValidation, ErrConstraint},
		},
		{
			name:    "validation",
			err:     NewValidationError([]string{"name: cannot be blank"}),
			matches: []error{ErrValidation, ErrData, ErrFramework},
			misses:  []error{ErrConcurrency},
		},
		{
			name:    "constraint",
			err:     NewConstraintError("duplicate key", fmt.Errorf("UNIQUE constraint failed: colors.id")),
			matches: []error{ErrConstraint, ErrData, ErrFramework},
			misses:  []error{ErrValidation},
		},
		{
			name:    "unknown include",
			err:     UnknownInclude("Fruit", "Owner"),
			matches: []error{ErrUnknownInclude, ErrData, ErrFramework},
			misses:  []error{ErrNotFound},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, kind := range tc.matches {
				assert.True(t, Is(tc.err, kind), "expected %v to match %v", tc.err, kind)
			}
			for _, kind := range tc.misses {
				assert.False(t, Is(tc.err, kind), "expected %v not to match %v", tc.err, kind)
			}
		})
	}
}

func TestMarksSurviveWrapping(t *testing.T) {
	err := errors.Wrap(NewConcurrencyError("Color", 1), "save")
	assert.True(t, Is(err, ErrConcurrency))
	assert.True(t, Is(err, ErrData))

	var ce *ConcurrencyError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "Color", ce.Entity)
	assert.Equal(t, 1, ce.ID)
}

func TestValidationMessage(t *testing.T) {
	err := NewValidationError([]string{"name: cannot be blank", "hex: must be in a valid format"})

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Messages, 2)
	assert.Contains(t, err.Error(), "errors => name: cannot be blank; hex: must be in a valid format")
}

func TestConstraintUnwrap(t *testing.T) {
	cause := fmt.Errorf("duplicate key value violates unique constraint")
	err := NewConstraintError("duplicate key", cause)
	assert.True(t, errors.Is(err, cause))
}

func TestMarkNil(t *testing.T) {
	assert.NoError(t, Mark(nil, ErrData))
	assert.NoError(t, Data(nil, "ignored"))
}
