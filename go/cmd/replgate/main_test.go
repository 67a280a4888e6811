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
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

func Test_transformArgsForPflag(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config-file", "replgate.yaml", "")
	fs.StringP("region", "r", "", "")
	fs.BoolP("debug", "d", true, "")

	tests := []struct {
		args        []string
		transformed []string
	}{
		{
			args:        []string{"--config-file=fleet.yaml", "--region", "east", "-d"},
			transformed: []string{"--config-file=fleet.yaml", "--region", "east", "-d"},
		},
		{
			args:        []string{"-config-file=fleet.yaml", "-region", "east", "-d"},
			transformed: []string{"--config-file=fleet.yaml", "--region", "east", "-d"},
		},
		{
			args:        []string{"--", "-config-file=fleet.yaml"},
			transformed: []string{"--", "-config-file=fleet.yaml"},
		},
		{
			args:        []string{"-dr"}, // combined shortopts
			transformed: []string{"-dr"},
		},
	}

	for _, tt := range tests {
		name := strings.Join(tt.args, " ")

		t.Run(name, func(t *testing.T) {
			got := transformArgsForPflag(fs, tt.args)
			assert.Equal(t, tt.transformed, got)
		})
	}
}
