// Copyright © 2018 Enrico Stahn <enrico.stahn@gmail.com>
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

// Package config holds the configuration keys pw-queryd recognizes and
// the defaults/validation spec.md §6 and §4.1 specify.
package config

import "fmt"

// Defaults match spec.md §6/§4.1.
const (
	DefaultMaxClients           = 16
	DefaultCacheExpirationSecs  = 60
	DefaultTickIntervalSecs     = 10
	DefaultMetricsListenAddress = ":9252"
	MinCacheExpirationSecs      = 1
	MaxCacheExpirationSecs      = 3600
)

// Config is the set of recognized keys (spec.md §6 plus the EXPANSION
// keys SPEC_FULL.md §6 adds).
type Config struct {
	Port                       int    `mapstructure:"port"`
	MaxClients                 int    `mapstructure:"maxclients"`
	JsonrpcCacheExpirationTime int    `mapstructure:"jsonrpccacheexpirationtime"`
	DataDir                    string `mapstructure:"datadir"`
	MetricsListenAddress       string `mapstructure:"metricslistenaddress"`
	TickInterval               int    `mapstructure:"tickinterval"`
}

// Default returns a Config with every optional key at its spec.md default.
// Port has no sane default (it is required) and is left zero.
func Default() Config {
	return Config{
		MaxClients:                 DefaultMaxClients,
		JsonrpcCacheExpirationTime: DefaultCacheExpirationSecs,
		DataDir:                    ".",
		MetricsListenAddress:       DefaultMetricsListenAddress,
		TickInterval:               DefaultTickIntervalSecs,
	}
}

// Validate enforces the ranges spec.md §6 fixes for each key.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be in [1,65535], got %d", c.Port)
	}
	if c.MaxClients < 1 || c.MaxClients > 65535 {
		return fmt.Errorf("maxclients must be in [1,65535], got %d", c.MaxClients)
	}
	if c.JsonrpcCacheExpirationTime < MinCacheExpirationSecs || c.JsonrpcCacheExpirationTime > MaxCacheExpirationSecs {
		return fmt.Errorf("jsonrpccacheexpirationtime must be in [%d,%d], got %d",
			MinCacheExpirationSecs, MaxCacheExpirationSecs, c.JsonrpcCacheExpirationTime)
	}
	if c.TickInterval < 1 || c.TickInterval > 3600 {
		return fmt.Errorf("tickinterval must be in [1,3600], got %d", c.TickInterval)
	}
	return nil
}
