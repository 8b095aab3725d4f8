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
	"time"

	"github.com/tomoncle/strata/errs"
	"github.com/viccon/sturdyc"
)

// DefaultTTL keeps entries for as long as the process is likely to live.
const DefaultTTL = 10 * 365 * 24 * time.Hour

// Config sizes the sturdyc store behind a SimpleMemoryCache.
type Config struct {
	// Capacity is the number of entries kept before sturdyc evicts.
	Capacity int `json:"capacity" yaml:"capacity"`
	// NumShards spreads entries over independently locked shards.
	NumShards int `json:"num_shards" yaml:"num_shards"`
	// TTL is how long an entry stays cached.
	TTL time.Duration `json:"ttl" yaml:"ttl"`
	// EvictionPercentage of entries is dropped when Capacity is reached.
	EvictionPercentage int `json:"eviction_percentage" yaml:"eviction_percentage"`
	// EvictionInterval is how often expired entries are swept. Zero keeps
	// the sturdyc default.
	EvictionInterval time.Duration `json:"eviction_interval" yaml:"eviction_interval"`
}

// DefaultConfig returns a Config for a few thousand entities per type.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                DefaultTTL,
		EvictionPercentage: 10,
	}
}

// Validate reports the first invalid field as an errs.ErrConfiguration.
func (c Config) Validate() error {
	switch {
	case c.Capacity <= 0:
		return errs.Configurationf("cache capacity must be greater than 0, got %d", c.Capacity)
	case c.NumShards <= 0:
		return errs.Configurationf("cache shards must be greater than 0, got %d", c.NumShards)
	case c.NumShards > c.Capacity:
		return errs.Configurationf("cache shards (%d) exceed capacity (%d)", c.NumShards, c.Capacity)
	case c.TTL <= 0:
		return errs.Configurationf("cache ttl must be positive, got %s", c.TTL)
	case c.EvictionPercentage < 1 || c.EvictionPercentage > 100:
		return errs.Configurationf("cache eviction percentage must be between 1 and 100, got %d", c.EvictionPercentage)
	case c.EvictionInterval < 0:
		return errs.Configurationf("cache eviction interval must not be negative, got %s", c.EvictionInterval)
	}
	return nil
}

func (c Config) options() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}
