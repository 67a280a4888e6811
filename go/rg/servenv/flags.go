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

package servenv

import (
	goflag "flag"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/replgate/replgate/go/rg/log"
	"github.com/replgate/replgate/go/rg/rgerrors"
	"github.com/replgate/replgate/go/viperutil"
)

var (
	flagHooksM       sync.Mutex
	globalFlagHooks  []func(*pflag.FlagSet)
	commandFlagHooks = map[string][]func(*pflag.FlagSet){}
)

// OnParse registers a callback function to register flags on the
// flagset of every command that goes through servenv.
func OnParse(f func(fs *pflag.FlagSet)) {
	flagHooksM.Lock()
	defer flagHooksM.Unlock()

	globalFlagHooks = append(globalFlagHooks, f)
}

// OnParseFor registers a callback function to register flags on the
// flagset of a particular command. The registered function will only be
// called for the named command.
func OnParseFor(cmd string, f func(fs *pflag.FlagSet)) {
	flagHooksM.Lock()
	defer flagHooksM.Unlock()

	commandFlagHooks[cmd] = append(commandFlagHooks[cmd], f)
}

func getFlagHooksFor(cmd string) (hooks []func(fs *pflag.FlagSet)) {
	flagHooksM.Lock()
	defer flagHooksM.Unlock()

	hooks = append(hooks, globalFlagHooks...) // done deliberately to copy the slice

	if commandHooks, ok := commandFlagHooks[cmd]; ok {
		hooks = append(hooks, commandHooks...)
	}

	return hooks
}

// GetFlagSetFor returns the flag set for a given command. This has to
// exactly match the flag set used by that command.
func GetFlagSetFor(cmd string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(cmd, pflag.ExitOnError)
	for _, hook := range getFlagHooksFor(cmd) {
		hook(fs)
	}

	return fs
}

// MoveFlagsToCobraCommand moves the flags registered against servenv
// (and the standard library flags glog installs) onto the given cobra
// command, so cobra's own parsing picks all of them up.
func MoveFlagsToCobraCommand(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.AddFlagSet(GetFlagSetFor(cmd.Name()))
	preventGlogVFlagFromClobberingVersionFlagShorthand(fs)
	fs.AddGoFlagSet(goflag.CommandLine)
	pflag.CommandLine = fs
}

// glog installs a single-letter "v" flag for verbosity, and pflag turns
// every single-letter standard library flag it adopts into both a
// longhand and a shorthand flag. The "-v" shorthand belongs to
// --version, so glog's flag is brought over first, without one:
// verbosity stays reachable as "--v".
func preventGlogVFlagFromClobberingVersionFlagShorthand(fs *pflag.FlagSet) {
	if fs.Lookup("v") != nil { // This check is exactly what AddGoFlagSet does.
		return
	}
	if f := goflag.Lookup("v"); f != nil {
		pf := pflag.PFlagFromGoFlag(f)
		pf.Shorthand = ""
		fs.AddFlag(pf)
	}
}

// CobraPreRunE returns the common function that commands will need to
// load the viper config infrastructure. It matches the signature of
// cobra's (Pre|Post)RunE-type functions.
func CobraPreRunE(cmd *cobra.Command, args []string) error {
	// glog stays noisy until the standard library believes the command
	// line was parsed. Cobra owns the real arguments, so feed the
	// standard parser an empty set.
	rest := os.Args[1:]
	os.Args = os.Args[0:1]
	goflag.Parse()
	os.Args = append(os.Args, rest...)

	if err := log.Init(cmd.Flags()); err != nil {
		return rgerrors.Wrapf(err, "%s: failed to initialize logging", cmd.Name())
	}

	if err := viperutil.LoadConfig(); err != nil {
		return rgerrors.Wrapf(err, "%s: failed to read in config", cmd.Name())
	}

	return nil
}
