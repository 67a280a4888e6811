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

// Package sync provides a threadsafe viper wrapper for configs that are
// watched on disk: values registered to it pick up config file changes
// for the lifetime of the process without torn reads.
package sync

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/replgate/replgate/go/rg/rgerrors"
)

// ErrDuplicateWatch is returned when Watch is called multiple times on a
// single synced viper. Viper only supports reading/watching a single
// config file.
var ErrDuplicateWatch = rgerrors.New(rgerrors.FailedPrecondition, "duplicate watch")

// Viper is a wrapper around a pair of viper.Vipers that provides
// threadsafe access to a watched config. The disk viper tracks the file;
// the live viper is what bound getters actually read, guarded per-key so
// a reload never produces a torn value.
type Viper struct {
	m    sync.Mutex // prevents races between loadFromDisk and AllSettings
	disk *viper.Viper
	live *viper.Viper
	keys map[string]*sync.RWMutex

	subscribers    []chan<- struct{}
	watchingConfig bool
}

// New returns a new synced Viper.
func New() *Viper {
	return &Viper{
		disk: viper.New(),
		live: viper.New(),
		keys: map[string]*sync.RWMutex{},
	}
}

// Watch starts watching the config file used by the static viper. If the
// static viper did not load a config file, the static settings are merged
// once and no watch is established. Watch may be called at most once.
func (v *Viper) Watch(static *viper.Viper) error {
	if v.watchingConfig {
		return rgerrors.Wrapf(ErrDuplicateWatch, "viper is already watching %s", v.disk.ConfigFileUsed())
	}

	cfg := static.ConfigFileUsed()
	if cfg == "" {
		// No config file to watch, just merge the settings and return.
		return v.live.MergeConfigMap(static.AllSettings())
	}

	v.disk.SetConfigFile(cfg)
	if err := v.disk.ReadInConfig(); err != nil {
		return err
	}

	v.watchingConfig = true
	v.loadFromDisk()
	v.disk.OnConfigChange(func(in fsnotify.Event) {
		for _, m := range v.keys {
			m.Lock()
			// This won't fire until after the config has been updated on v.live.
			defer m.Unlock()
		}

		v.loadFromDisk()

		for _, ch := range v.subscribers {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	})
	v.disk.WatchConfig()

	return nil
}

// Notify adds a subscriber that will be notified whenever the underlying
// config file changes. It must be called before Watch.
func (v *Viper) Notify(ch chan<- struct{}) {
	if v.watchingConfig {
		panic("cannot Notify after starting to watch a config")
	}

	v.subscribers = append(v.subscribers, ch)
}

// AllSettings returns the current settings of the live config.
func (v *Viper) AllSettings() map[string]any {
	v.m.Lock()
	defer v.m.Unlock()

	return v.live.AllSettings()
}

func (v *Viper) loadFromDisk() {
	v.m.Lock()
	defer v.m.Unlock()

	// MergeConfigMap only ever returns nil in current viper.
	_ = v.live.MergeConfigMap(v.disk.AllSettings())
}

// begin implementation of registry.Bindable for sync.Viper

func (v *Viper) BindEnv(vars ...string) error                 { return v.live.BindEnv(vars...) }
func (v *Viper) BindPFlag(key string, flag *pflag.Flag) error { return v.live.BindPFlag(key, flag) }
func (v *Viper) RegisterAlias(alias string, key string)       { v.live.RegisterAlias(alias, key) }
func (v *Viper) SetDefault(key string, value any)             { v.live.SetDefault(key, value) }
func (v *Viper) Set(key string, value any)                    { v.live.Set(key, value) }

// end implementation of registry.Bindable for sync.Viper

// AdaptGetter wraps a get function for a key so it is threadsafe with
// respect to config reloads. It must be called before the synced viper
// begins watching a config, and at most once per key.
func AdaptGetter[T any](key string, getter func(v *viper.Viper) func(key string) T, v *Viper) func(key string) T {
	if v.watchingConfig {
		panic("cannot adapt getter to synchronized viper which is already watching a config")
	}

	if _, ok := v.keys[key]; ok {
		panic(fmt.Sprintf("already adapted a getter for key %s", key))
	}

	var m sync.RWMutex
	v.keys[key] = &m

	boundGet := getter(v.live)

	return func(key string) T {
		m.RLock()
		defer m.RUnlock()

		return boundGet(key)
	}
}
