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

package viperutil

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// GetFuncForType returns the default getter function for a given type
// T. A getter function is a function which takes a viper and returns a
// function that takes a key and (finally!) returns a value of type T.
//
// Types without a sensible default getter (structs, slices of structs,
// and so on) panic; values of those types must provide an explicit
// GetFunc in their Options.
func GetFuncForType[T any]() func(v *viper.Viper) func(key string) T {
	var (
		t T
		f any
	)

	switch any(t).(type) {
	case bool:
		f = func(v *viper.Viper) func(key string) bool { return v.GetBool }
	case int:
		f = func(v *viper.Viper) func(key string) int { return v.GetInt }
	case int32:
		f = func(v *viper.Viper) func(key string) int32 { return v.GetInt32 }
	case int64:
		f = func(v *viper.Viper) func(key string) int64 { return v.GetInt64 }
	case uint:
		f = func(v *viper.Viper) func(key string) uint { return v.GetUint }
	case uint32:
		f = func(v *viper.Viper) func(key string) uint32 { return v.GetUint32 }
	case uint64:
		f = func(v *viper.Viper) func(key string) uint64 { return v.GetUint64 }
	case float64:
		f = func(v *viper.Viper) func(key string) float64 { return v.GetFloat64 }
	case string:
		f = func(v *viper.Viper) func(key string) string { return v.GetString }
	case []string:
		f = func(v *viper.Viper) func(key string) []string { return v.GetStringSlice }
	case []int:
		f = func(v *viper.Viper) func(key string) []int { return v.GetIntSlice }
	case map[string]string:
		f = func(v *viper.Viper) func(key string) map[string]string { return v.GetStringMapString }
	case map[string]any:
		f = func(v *viper.Viper) func(key string) map[string]any { return v.GetStringMap }
	case time.Duration:
		f = func(v *viper.Viper) func(key string) time.Duration { return v.GetDuration }
	case time.Time:
		f = func(v *viper.Viper) func(key string) time.Time { return v.GetTime }
	}

	if f == nil {
		panic(fmt.Sprintf("no default getter for type %T; Configure the value with an explicit GetFunc", t))
	}

	fn, ok := f.(func(v *viper.Viper) func(key string) T)
	if !ok {
		panic(fmt.Sprintf("impossible: getter for %T does not have type %T", t, fn))
	}

	return fn
}
