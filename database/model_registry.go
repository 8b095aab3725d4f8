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

package database

import (
	"sort"
	"sync"
)

var defaultRegistry = &ModelRegistry{}

// SQLModel is a bun model whose table the migration manager creates.
// Lower priorities are created first, so referenced tables should carry a
// lower priority than the tables pointing at them.
type SQLModel interface {
	Instance() interface{}
	Priority() int
}

// ModelRegistry keeps SQL models in priority order. Models with equal
// priority keep their registration order.
type ModelRegistry struct {
	mu     sync.RWMutex
	models []SQLModel
}

func (r *ModelRegistry) Register(model SQLModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = append(r.models, model)
	sort.SliceStable(r.models, func(i, j int) bool {
		return r.models[i].Priority() < r.models[j].Priority()
	})
}

func (r *ModelRegistry) Models() []SQLModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SQLModel, len(r.models))
	copy(out, r.models)
	return out
}

// Instances returns the bun model of every registered SQLModel.
func (r *ModelRegistry) Instances() []interface{} {
	models := r.Models()
	out := make([]interface{}, len(models))
	for i, m := range models {
		out[i] = m.Instance()
	}
	return out
}

type modelAdapter struct {
	instance interface{}
	priority int
}

func (a modelAdapter) Instance() interface{} { return a.instance }

func (a modelAdapter) Priority() int { return a.priority }

// NewModelAdapter wraps a bun model pointer, e.g. (*Color)(nil), as an SQLModel.
func NewModelAdapter(instance interface{}, priority int) SQLModel {
	return modelAdapter{instance: instance, priority: priority}
}

// RegisterModel adds a model to the default registry.
func RegisterModel(instance interface{}, priority int) {
	defaultRegistry.Register(NewModelAdapter(instance, priority))
}

// GetRegisteredModels returns the default registry's models in priority order.
func GetRegisteredModels() []SQLModel {
	return defaultRegistry.Models()
}

// RegisteredModelInstances returns the bun models of the default registry.
func RegisteredModelInstances() []interface{} {
	return defaultRegistry.Instances()
}
