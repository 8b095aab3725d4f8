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

package entity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// IEntity is the contract the repositories rely on. It is satisfied by a
// pointer to any struct embedding Entity or GuidEntity.
type IEntity interface {
	EntityID() any
	// AssignID gives a transient entity a client-side identifier. It is a
	// no-op for store-generated identifiers.
	AssignID()
	GetCreatedDate() time.Time
	SetCreated(at time.Time, by string)
	SetModified(at time.Time, by string)
	GetVersion() []byte
	SetVersion(version []byte)
}

// NamedEntity is implemented by entities exposing a display name.
type NamedEntity interface {
	GetName() string
	SetName(name string)
}

// Audit holds the columns shared by every persisted entity.
type Audit struct {
	Name         string     `bun:"name,nullzero" json:"name,omitempty"`
	CreatedDate  time.Time  `bun:"created_date,notnull" json:"created_date"`
	ModifiedDate *time.Time `bun:"modified_date" json:"modified_date,omitempty"`
	CreatedBy    string     `bun:"created_by,nullzero" json:"created_by,omitempty"`
	ModifiedBy   string     `bun:"modified_by,nullzero" json:"modified_by,omitempty"`
	// Version is the optimistic concurrency token. It is replaced on every
	// successful write and compared on update and delete.
	Version []byte `bun:"version" json:"-"`
}

var _ bun.BeforeAppendModelHook = (*Audit)(nil)

func (a *Audit) GetName() string { return a.Name }

func (a *Audit) SetName(name string) { a.Name = name }

// GetCreatedDate returns the creation time, or the current time when the
// entity has not been stamped yet.
func (a *Audit) GetCreatedDate() time.Time {
	if a.CreatedDate.IsZero() {
		return time.Now().UTC()
	}
	return a.CreatedDate
}

func (a *Audit) SetCreated(at time.Time, by string) {
	a.CreatedDate = at
	a.CreatedBy = by
}

func (a *Audit) SetModified(at time.Time, by string) {
	a.ModifiedDate = &at
	a.ModifiedBy = by
}

func (a *Audit) GetVersion() []byte { return a.Version }

func (a *Audit) SetVersion(version []byte) { a.Version = version }

// BeforeAppendModel keeps created_date non-null for rows inserted through a
// raw bun query instead of a repository.
func (a *Audit) BeforeAppendModel(_ context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && a.CreatedDate.IsZero() {
		a.CreatedDate = time.Now().UTC()
	}
	return nil
}

// Entity is the base for records with a store-generated integer key.
type Entity struct {
	ID int64 `bun:"id,pk,autoincrement" json:"id"`
	Audit
}

func (e *Entity) EntityID() any { return e.ID }

func (e *Entity) AssignID() {}

// GuidEntity is the base for records keyed by a client-generated UUID.
type GuidEntity struct {
	ID uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Audit
}

func (e *GuidEntity) EntityID() any { return e.ID }

func (e *GuidEntity) AssignID() {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
}

// NewVersion returns a fresh concurrency token.
func NewVersion() []byte {
	v := uuid.New()
	return v[:]
}
