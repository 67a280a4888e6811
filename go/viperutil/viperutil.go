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

// Package viperutil provides a config layer on top of viper. Packages
// declare config values with Configure, which binds a key to some
// combination of flag, environment variable, config file entry and
// default, and get back a typed handle they read at runtime.
//
// Values are either static, resolved once after flag parsing, or
// dynamic, in which case they follow the config file across reloads
// when one is being watched. See LoadConfig.
package viperutil

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/replgate/replgate/go/viperutil/internal/value"
)

// Options represents the various options used to control how Values are
// configured by viperutil.
type Options[T any] struct {
	// Aliases, if set, configures the Value to be accessible via
	// additional keys.
	Aliases []string

	// FlagName, if set, binds the value of the named flag, whenever it
	// was explicitly set, to this Value. The flag itself must be defined
	// separately, before binding.
	FlagName string

	// EnvVars, if set, binds the given environment variables to this
	// Value, in decreasing precedence.
	EnvVars []string

	// Default is the default for the Value when no flag, environment
	// variable or config file entry provides one.
	Default T

	// Dynamic, if true, backs the Value with the watched registry so it
	// reflects config file changes at runtime.
	Dynamic bool

	// GetFunc is the function used to extract the Value from a viper.
	// If omitted, a default getter for T is used; see GetFuncForType.
	GetFunc func(v *viper.Viper) func(key string) T
}

// Value is the interface that configured values expose to their owning
// packages.
type Value[T any] interface {
	value.Registerable

	// Default returns the default of this value.
	Default() T
	// Get returns the current live setting of this value.
	Get() T
	// Set overrides this value in its backing registry.
	Set(v T)
}

// Configure configures a viper-backed value associated with the given
// key to one of the internal registries and returns a handle to it.
//
// Configure must be called before flag binding (and therefore before
// flag parsing and LoadConfig); it is intended to be called from
// package init or variable initialization.
func Configure[T any](key string, opts Options[T]) (v Value[T]) {
	getfunc := opts.GetFunc
	if getfunc == nil {
		getfunc = GetFuncForType[T]()
	}

	base := &value.Base[T]{
		KeyName:    key,
		DefaultVal: opts.Default,
		GetFunc:    getfunc,
		Aliases:    opts.Aliases,
		FlagName:   opts.FlagName,
		EnvVars:    opts.EnvVars,
	}

	switch {
	case opts.Dynamic:
		v = value.NewDynamic(base)
	default:
		v = value.NewStatic(base)
	}

	return v
}

// BindFlags binds a set of Registerable values to the given flag set.
// It must be called after the flags named by the values were defined on
// the set, and before the set is parsed. A value naming a missing flag
// is a programmer error, and BindFlags panics.
func BindFlags(fs *pflag.FlagSet, values ...value.Registerable) {
	value.BindFlags(fs, values...)
}
