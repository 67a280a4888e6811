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

// Package value holds the Static and Dynamic value implementations that
// back viperutil.Value. Static values bind to the startup-time registry;
// Dynamic values bind to the watched registry and reflect config file
// changes at runtime.
package value

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/replgate/replgate/go/rg/rgerrors"
	"github.com/replgate/replgate/go/viperutil/internal/registry"
	"github.com/replgate/replgate/go/viperutil/internal/sync"
)

// ErrNoFlagDefined is returned when a value was configured with a flag
// name that was never defined on the FlagSet it is being bound to.
var ErrNoFlagDefined = rgerrors.New(rgerrors.InvalidArgument, "flag not defined")

// Registerable is the subset of the interface exposed by Values needed
// to register them to a registry.Bindable.
type Registerable interface {
	Key() string
	Registry() registry.Bindable
	Flag(fs *pflag.FlagSet) (*pflag.Flag, error)
}

// Base is the base functionality shared by Static and Dynamic values.
// It implements Registerable.
type Base[T any] struct {
	KeyName    string
	DefaultVal T

	GetFunc func(v *viper.Viper) func(key string) T

	Aliases  []string
	FlagName string
	EnvVars  []string

	BoundGetFunc func(key string) T

	// Set by Stub, restored by Unstub.
	unstubbedGetFunc func(key string) T
}

// Key is part of the Registerable interface.
func (val *Base[T]) Key() string { return val.KeyName }

// Default returns the default value this was configured with.
func (val *Base[T]) Default() T { return val.DefaultVal }

// Get returns the current live value.
func (val *Base[T]) Get() T { return val.BoundGetFunc(val.Key()) }

// Flag is part of the Registerable interface. It returns nil with no
// error when the value has no flag binding at all.
func (val *Base[T]) Flag(fs *pflag.FlagSet) (*pflag.Flag, error) {
	if val.FlagName == "" {
		return nil, nil
	}

	flag := fs.Lookup(val.FlagName)
	if flag == nil {
		return nil, rgerrors.Wrapf(ErrNoFlagDefined, "flag %q (for key %q) not defined on flag set", val.FlagName, val.KeyName)
	}

	return flag, nil
}

// Stub replaces the value's bound getter with one backed by the given
// viper, bypassing the process registries. Tests should go through
// vipertest.Stub rather than calling this directly.
func (val *Base[T]) Stub(v *viper.Viper) {
	if val.unstubbedGetFunc != nil {
		panic(fmt.Sprintf("value for key %s is already stubbed", val.KeyName))
	}

	val.unstubbedGetFunc = val.BoundGetFunc
	val.BoundGetFunc = val.GetFunc(v)
}

// Unstub restores the getter that was in place before Stub.
func (val *Base[T]) Unstub() {
	if val.unstubbedGetFunc == nil {
		return
	}

	val.BoundGetFunc = val.unstubbedGetFunc
	val.unstubbedGetFunc = nil
}

func (val *Base[T]) bind(v registry.Bindable) {
	v.SetDefault(val.KeyName, val.DefaultVal)

	for _, alias := range val.Aliases {
		v.RegisterAlias(alias, val.KeyName)
	}

	if len(val.EnvVars) > 0 {
		vars := append([]string{val.KeyName}, val.EnvVars...)
		_ = v.BindEnv(vars...)
	}
}

// BindFlags creates bindings between each value's registry and the given
// FlagSet. A value whose named flag is missing from the set is a
// programmer error, so this panics.
func BindFlags(fs *pflag.FlagSet, values ...Registerable) {
	for _, val := range values {
		flag, err := val.Flag(fs)
		switch {
		case err != nil:
			panic(fmt.Sprintf("failed to get flag for value (key %s): %s", val.Key(), err))
		case flag == nil:
			continue
		}

		_ = val.Registry().BindPFlag(val.Key(), flag)
	}
}

// Static is a value that is resolved exactly once, at startup, and
// then never changes.
type Static[T any] struct {
	*Base[T]
}

// NewStatic binds a base value to the static registry and returns it as
// a Static value.
func NewStatic[T any](base *Base[T]) *Static[T] {
	base.bind(registry.Static)
	base.BoundGetFunc = base.GetFunc(registry.Static)

	return &Static[T]{Base: base}
}

// Registry is part of the Registerable interface.
func (val *Static[T]) Registry() registry.Bindable { return registry.Static }

// Set sets the value in the static registry.
func (val *Static[T]) Set(v T) { registry.Static.Set(val.KeyName, v) }

// Dynamic is a value that may change during the lifetime of the process
// when a watched config file is updated.
type Dynamic[T any] struct {
	*Base[T]
}

// NewDynamic binds a base value to the dynamic registry, adapts its
// getter to be reload-safe and returns it as a Dynamic value.
func NewDynamic[T any](base *Base[T]) *Dynamic[T] {
	base.bind(registry.Dynamic)
	base.BoundGetFunc = sync.AdaptGetter(base.KeyName, base.GetFunc, registry.Dynamic)

	return &Dynamic[T]{Base: base}
}

// Registry is part of the Registerable interface.
func (val *Dynamic[T]) Registry() registry.Bindable { return registry.Dynamic }

// Set sets the value in the dynamic registry.
func (val *Dynamic[T]) Set(v T) { registry.Dynamic.Set(val.KeyName, v) }
