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
	"github.com/replgate/replgate/go/viperutil/internal/sync"
	"github.com/replgate/replgate/go/viperutil/internal/value"
)

var (
	// ErrDuplicateWatch is returned when Watch is called on a synced
	// Viper which is already watching a config file.
	ErrDuplicateWatch = sync.ErrDuplicateWatch
	// ErrNoFlagDefined is returned from a Value's Flag method when the
	// value was configured to correspond to a given flag name, but the
	// flag set in question has no flag with that name.
	ErrNoFlagDefined = value.ErrNoFlagDefined
)
