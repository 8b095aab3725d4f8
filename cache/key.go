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

package cache

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// KeyGenerator turns a lookup identifier into a cache key.
type KeyGenerator func(identifier any) string

// IdentityKey uses string identifiers as they are and formats anything else
// with %v.
func IdentityKey(identifier any) string {
	switch v := identifier.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", identifier)
	}
}

// TypedKey prefixes identifiers with the snake_case name of T, e.g.
// TypedKey[*Color]()(7) is "color::7". Caches of different types can then
// share a key space.
func TypedKey[T any]() KeyGenerator {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	prefix := snakeCase(typ.Name()) + "::"
	return func(identifier any) string {
		return prefix + IdentityKey(identifier)
	}
}

// HashedKey hashes a msgpack encoding of the identifier with xxhash and
// hands the hex digest to next. Composite identifiers such as structs or
// maps get short and stable keys this way.
func HashedKey(next KeyGenerator) KeyGenerator {
	if next == nil {
		next = IdentityKey
	}
	return func(identifier any) string {
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetSortMapKeys(true)
		if err := enc.Encode(identifier); err != nil {
			return next(identifier)
		}
		return next(strconv.FormatUint(xxhash.Sum64(buf.Bytes()), 16))
	}
}

func snakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
