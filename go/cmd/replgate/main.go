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

package main

import (
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/replgate/replgate/go/cmd/replgate/cli"
	"github.com/replgate/replgate/go/rg/log"
)

// transformArgsForPflag turns a slice of raw args passed on the command
// line, possibly incompatible with pflag (because the caller is
// expecting stdlib flag parsing behavior), into the args that should
// have been passed to conform to pflag parsing behavior.
//
// Concretely, a long flag written with a single dash ("-region east")
// becomes a double-dash flag ("--region east"). Shortopts, combined
// shortopts and everything following a bare "--" pass through
// untouched.
func transformArgsForPflag(fs *pflag.FlagSet, args []string) (result []string) {
	for i, arg := range args {
		switch {
		case arg == "--":
			// pflag stops parsing at "--", so we're done transforming
			// the CLI arguments. Append everything remaining and be
			// done.
			result = append(result, args[i:]...)
			return result
		case strings.HasPrefix(arg, "--"):
			// Long-hand flag. Append it and continue.
			result = append(result, arg)
		case strings.HasPrefix(arg, "-") && len(arg) > 1:
			// This is either:
			// 1. A legacy long-hand flag (e.g. "-region").
			// 2. One or more pflag shortopts (e.g. "-d" or "-dr").
			name := strings.SplitN(arg[1:], "=", 2)[0]
			if fs.Lookup(name) != nil {
				// Case 1.
				result = append(result, "-"+arg)
				continue
			}
			// Case 2.
			result = append(result, arg)
		default:
			// Just a flag argument or command name. Append and continue.
			result = append(result, arg)
		}
	}
	return result
}

func main() {
	// cli's init has moved every registered flag onto Main by this
	// point, so the flag set knows which single-dash args are legacy
	// long-hand flags.
	os.Args = append(os.Args[0:1], transformArgsForPflag(cli.Main.Flags(), os.Args[1:])...)

	if err := cli.Main.Execute(); err != nil {
		log.Exit(err)
	}
}
