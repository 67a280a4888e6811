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

package cli

import (
	"context"

	"github.com/spf13/viper"

	"github.com/replgate/replgate/go/rg/instance"
	"github.com/replgate/replgate/go/rg/instance/mysqlinst"
	"github.com/replgate/replgate/go/rg/instance/sqliteinst"
	"github.com/replgate/replgate/go/rg/log"
	"github.com/replgate/replgate/go/rg/rgerrors"
	"github.com/replgate/replgate/go/viperutil"
)

// InstanceConfig is one entry of the instances list in the config file.
// For example (YAML):
//
//	instances:
//	  - id: primary-1
//	    role: primary
//	    region: us-east-1
//	    driver: mysql
//	    dsn: "app:secret@tcp(10.0.0.10:3306)/app"
//	  - id: replica-1
//	    role: replica
//	    region: us-east-1
//	    driver: mysql
//	    dsn: "app:secret@tcp(10.0.0.11:3306)/app"
type InstanceConfig struct {
	// ID uniquely identifies the instance within this replgate.
	ID string `mapstructure:"id"`
	// Role is "primary" or "replica". Exactly one instance must be the
	// primary.
	Role string `mapstructure:"role"`
	// Region is the failure domain the instance serves from. Optional.
	Region string `mapstructure:"region"`
	// Addr is a display address for status pages. Optional; backends
	// connect with the DSN, not this.
	Addr string `mapstructure:"addr"`
	// Driver selects the backend: "mysql" or "sqlite".
	Driver string `mapstructure:"driver"`
	// DSN is the driver-specific connection string.
	DSN string `mapstructure:"dsn"`
}

var instancesConfig = viperutil.Configure("instances", viperutil.Options[[]InstanceConfig]{
	GetFunc: func(v *viper.Viper) func(key string) []InstanceConfig {
		return func(key string) (configs []InstanceConfig) {
			if err := v.UnmarshalKey(key, &configs); err != nil {
				log.Exitf("invalid instances config: %v", err)
			}
			return configs
		}
	},
})

// fleetMember pairs a validated instance with its constructed backend
// client.
type fleetMember struct {
	inst   *instance.Instance
	client instance.Client
}

// buildFleet validates the configured instance set and constructs a
// backend client for every member. Constructing a client does not
// require the instance to be up: backends connect lazily, and a failed
// schema initialization only logs a warning so a down database delays
// health, not startup.
func buildFleet(ctx context.Context, configs []InstanceConfig) ([]*fleetMember, error) {
	insts, err := validateFleet(configs)
	if err != nil {
		return nil, err
	}

	members := make([]*fleetMember, 0, len(insts))
	for i, inst := range insts {
		client, err := newClient(ctx, inst, configs[i])
		if err != nil {
			for _, m := range members {
				_ = m.client.Close()
			}
			return nil, err
		}
		members = append(members, &fleetMember{inst: inst, client: client})
	}
	return members, nil
}

// validateFleet checks the configured instance set: non-empty, unique
// ids, parseable roles, a DSN and a known driver per entry, and exactly
// one primary. It touches neither disk nor network.
func validateFleet(configs []InstanceConfig) ([]*instance.Instance, error) {
	if len(configs) == 0 {
		return nil, rgerrors.New(rgerrors.FailedPrecondition, "no instances configured; list the fleet under the instances key of the config file")
	}

	var (
		insts   []*instance.Instance
		primary string
		seen    = make(map[string]bool, len(configs))
	)
	for _, cfg := range configs {
		if cfg.ID == "" {
			return nil, rgerrors.New(rgerrors.InvalidArgument, "instance without an id in config")
		}
		if seen[cfg.ID] {
			return nil, rgerrors.Errorf(rgerrors.InvalidArgument, "duplicate instance id %q in config", cfg.ID)
		}
		seen[cfg.ID] = true

		role, err := instance.ParseRole(cfg.Role)
		if err != nil {
			return nil, rgerrors.Wrapf(err, "instance %s", cfg.ID)
		}
		if role == instance.RolePrimary {
			if primary != "" {
				return nil, rgerrors.Errorf(rgerrors.FailedPrecondition, "more than one primary configured: %s and %s", primary, cfg.ID)
			}
			primary = cfg.ID
		}
		if cfg.DSN == "" {
			return nil, rgerrors.Errorf(rgerrors.InvalidArgument, "instance %s: no dsn configured", cfg.ID)
		}
		switch cfg.Driver {
		case "mysql", "sqlite":
		default:
			return nil, rgerrors.Errorf(rgerrors.InvalidArgument, "instance %s: unknown driver %q (supported: mysql, sqlite)", cfg.ID, cfg.Driver)
		}

		insts = append(insts, &instance.Instance{ID: cfg.ID, Role: role, Region: cfg.Region, Addr: cfg.Addr})
	}
	if primary == "" {
		return nil, rgerrors.New(rgerrors.FailedPrecondition, "no primary configured; exactly one instance must have role primary")
	}
	return insts, nil
}

// newClient constructs the backend client for a validated instance and
// initializes the watermark schema where the backend wants it: on the
// primary for MySQL, where replication carries it to the replicas, and
// on every instance for sqlite, which has no replication.
func newClient(ctx context.Context, inst *instance.Instance, cfg InstanceConfig) (instance.Client, error) {
	switch cfg.Driver {
	case "mysql":
		client, err := mysqlinst.New(inst, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if inst.IsPrimary() {
			ensureSchema(ctx, inst, client)
		}
		return client, nil
	case "sqlite":
		client, err := sqliteinst.New(inst, cfg.DSN)
		if err != nil {
			return nil, err
		}
		ensureSchema(ctx, inst, client)
		return client, nil
	default:
		return nil, rgerrors.Errorf(rgerrors.InvalidArgument, "instance %s: unhandled driver %q", inst.ID, cfg.Driver)
	}
}

// schemaEnsurer is the backend hook creating the watermark schema. Both
// bundled backends implement it.
type schemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

func ensureSchema(ctx context.Context, inst *instance.Instance, client schemaEnsurer) {
	if err := client.EnsureSchema(ctx); err != nil {
		log.Warningf("instance %s: cannot initialize watermark schema, probes will report it until the instance recovers: %v", inst.ID, err)
	}
}
