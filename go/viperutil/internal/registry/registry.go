/*
Copyright 2025 The ReplGate Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package registry holds the two global vipers that config values bind
// to: a static one, read exactly once at startup, and a dynamic one
// whose values follow the config file across reloads.
package registry

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/replgate/replgate/go/viperutil/internal/sync"
)

var (
	// Static is the registry for static config variables. These variables
	// are resolved once, at startup, and never change for the lifetime of
	// the process.
	Static = viper.New()
	// Dynamic is the registry for dynamic config variables. If a config
	// file is used and watched, these variables may change at runtime.
	Dynamic = sync.New()
)

// Bindable represents the methods needed to bind a value.Value to a
// given registry. It exists primarily to allow us to treat a
// sync.Viper as a viper.Viper for configuration registration purposes.
type Bindable interface {
	BindEnv(vars ...string) error
	BindPFlag(key string, flag *pflag.Flag) error
	RegisterAlias(alias string, key string)
	SetDefault(key string, value any)
}

// Combined returns a viper combining the Static and Dynamic registries.
func Combined() *viper.Viper {
	v := viper.New()
	_ = v.MergeConfigMap(Static.AllSettings())
	_ = v.MergeConfigMap(Dynamic.AllSettings())

	v.SetConfigFile(Static.ConfigFileUsed())
	return v
}
