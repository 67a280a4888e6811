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
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/replgate/replgate/go/rg/log"
	"github.com/replgate/replgate/go/viperutil/internal/registry"
)

// ConfigFileNotFoundHandling is an enum to control how LoadConfig
// reacts when the named config file cannot be found.
type ConfigFileNotFoundHandling int

const (
	// IgnoreConfigFileNotFound makes LoadConfig return successfully with
	// no logging when a config file cannot be found.
	IgnoreConfigFileNotFound ConfigFileNotFoundHandling = iota
	// WarnOnConfigFileNotFound makes LoadConfig log a warning when a
	// config file cannot be found, but still return successfully.
	WarnOnConfigFileNotFound
	// ErrorOnConfigFileNotFound makes LoadConfig return the
	// ConfigFileNotFoundError when one occurs.
	ErrorOnConfigFileNotFound
	// ExitOnConfigFileNotFound makes LoadConfig fatally exit when a
	// config file cannot be found.
	ExitOnConfigFileNotFound
)

func (h ConfigFileNotFoundHandling) String() string {
	switch h {
	case IgnoreConfigFileNotFound:
		return "ignore"
	case WarnOnConfigFileNotFound:
		return "warn"
	case ErrorOnConfigFileNotFound:
		return "error"
	case ExitOnConfigFileNotFound:
		return "exit"
	default:
		return "unknown"
	}
}

func parseConfigFileNotFoundHandling(s string) ConfigFileNotFoundHandling {
	switch strings.ToLower(s) {
	case "warn":
		return WarnOnConfigFileNotFound
	case "error":
		return ErrorOnConfigFileNotFound
	case "exit":
		return ExitOnConfigFileNotFound
	default:
		return IgnoreConfigFileNotFound
	}
}

var (
	configPaths = Configure("config.paths", Options[[]string]{
		FlagName: "config-path",
		EnvVars:  []string{"REPLGATE_CONFIG_PATH"},
	})
	configType = Configure("config.type", Options[string]{
		FlagName: "config-type",
		EnvVars:  []string{"REPLGATE_CONFIG_TYPE"},
	})
	configName = Configure("config.name", Options[string]{
		Default:  "replgate",
		FlagName: "config-name",
		EnvVars:  []string{"REPLGATE_CONFIG_NAME"},
	})
	configFile = Configure("config.file", Options[string]{
		FlagName: "config-file",
		EnvVars:  []string{"REPLGATE_CONFIG_FILE"},
	})
	configFileNotFoundHandling = Configure("config.notfound.handling", Options[ConfigFileNotFoundHandling]{
		Default:  WarnOnConfigFileNotFound,
		FlagName: "config-file-not-found-handling",
		GetFunc: func(v *viper.Viper) func(key string) ConfigFileNotFoundHandling {
			return func(key string) ConfigFileNotFoundHandling {
				return parseConfigFileNotFoundHandling(v.GetString(key))
			}
		},
	})
)

// RegisterFlags installs the flags that control config file loading on
// the given flag set. It is exported for servenv to call during server
// initialization.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringSlice("config-path", []string{"."}, "Paths to search for config files in.")
	fs.String("config-type", configType.Default(), "Config file type (omit to infer from file extension).")
	fs.String("config-name", configName.Default(), "Name of the config file (without extension) to search for.")
	fs.String("config-file", configFile.Default(), "Full path of the config file (with extension) to use. If set, --config-path, --config-type, and --config-name are ignored.")
	fs.String("config-file-not-found-handling", configFileNotFoundHandling.Default().String(), "Behavior when a config file is not found. (Options: ignore, warn, error, exit)")

	BindFlags(fs,
		configPaths,
		configType,
		configName,
		configFile,
		configFileNotFoundHandling,
	)
}

// LoadConfig attempts to find, and then load, a config file for viper
// to read static and dynamic values from. Static values are resolved
// against the file contents exactly once; dynamic values additionally
// follow the file when it changes on disk.
//
// It must be called after flag parsing, and after this point all
// configured values are usable.
func LoadConfig() error {
	var err error
	switch file := configFile.Get(); file {
	case "":
		if name := configName.Get(); name != "" {
			registry.Static.SetConfigName(name)

			for _, path := range configPaths.Get() {
				registry.Static.AddConfigPath(path)
			}

			if cfgType := configType.Get(); cfgType != "" {
				registry.Static.SetConfigType(cfgType)
			}

			err = registry.Static.ReadInConfig()
		}
	default:
		registry.Static.SetConfigFile(file)
		err = registry.Static.ReadInConfig()
	}

	if err != nil {
		if nferr, ok := err.(viper.ConfigFileNotFoundError); ok {
			msg := "Failed to read in config %s: %s"
			switch configFileNotFoundHandling.Get() {
			case WarnOnConfigFileNotFound:
				log.Warningf(msg, registry.Static.ConfigFileUsed(), nferr.Error())
				fallthrough
			case IgnoreConfigFileNotFound:
				err = nil
			case ExitOnConfigFileNotFound:
				log.Fatalf(msg, registry.Static.ConfigFileUsed(), nferr.Error())
			}
		}
	}

	if err != nil {
		return err
	}

	return registry.Dynamic.Watch(registry.Static)
}
