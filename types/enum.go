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

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// EntityState is the position of an entity in a unit of work.
type EntityState int

const (
	Unstaged EntityState = iota
	Added
	Modified
	Deleted
	Committed
)

var _ BaseEnum = Unstaged

var entityStates = map[EntityState][2]string{
	Unstaged:  {"unstaged", "not tracked by the session"},
	Added:     {"added", "staged for insert"},
	Modified:  {"modified", "staged for update"},
	Deleted:   {"deleted", "staged for delete"},
	Committed: {"committed", "persisted by the last save"},
}

func (s EntityState) IsValid() bool {
	_, ok := entityStates[s]
	return ok
}

func (s EntityState) Number() int {
	if !s.IsValid() {
		return IllegalValue
	}
	return int(s)
}

func (s EntityState) Name() string {
	if v, ok := entityStates[s]; ok {
		return v[0]
	}
	return IllegalName
}

func (s EntityState) Desc() string {
	if v, ok := entityStates[s]; ok {
		return v[1]
	}
	return IllegalDesc
}

func (s EntityState) String() string { return s.Name() }
