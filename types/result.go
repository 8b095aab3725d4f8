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

package types

import (
	"github.com/cockroachdb/errors"
)

// Result carries the outcome of an asynchronous operation: either a value
// (Ok) or an error (Err).
type Result[T any] struct {
	Ok  T
	Err error
}

// IsOk returns true if the Result holds a value.
func (r Result[T]) IsOk() bool {
	return r.Err == nil
}

// IsErr returns true if the Result holds an error. With kinds it reports
// whether the error matches any of them.
func (r Result[T]) IsErr(kinds ...error) bool {
	if len(kinds) == 0 {
		return r.Err != nil
	}
	for _, kind := range kinds {
		if errors.Is(r.Err, kind) {
			return true
		}
	}
	return false
}

// Unpack returns the value and error as a regular Go pair.
func (r Result[T]) Unpack() (T, error) {
	return r.Ok, r.Err
}

// Ok creates a successful Result.
func Ok[T any](value T) Result[T] {
	return Result[T]{Ok: value}
}

// Err creates a failed Result.
func Err[T any](err error) Result[T] {
	var zero T
	return Result[T]{Ok: zero, Err: err}
}

// Go runs fn on its own goroutine and delivers exactly one Result on the
// returned channel, which is buffered and closed after the value.
func Go[T any](fn func() (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		defer close(ch)
		v, err := fn()
		if err != nil {
			ch <- Err[T](err)
			return
		}
		ch <- Ok(v)
	}()
	return ch
}

// Await blocks until the Result arrives and unpacks it.
func Await[T any](ch <-chan Result[T]) (T, error) {
	return (<-ch).Unpack()
}
