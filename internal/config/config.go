// Package config parses the CLI surface defined in spec.md §6 into a
// Config struct. Command-line argument parsing is explicitly listed in
// spec.md §1 as an external, out-of-scope collaborator, so this stays a
// thin flag.FlagSet wrapper — the teacher's own idiom for its cmd/server
// entrypoint — rather than growing a cobra/viper layer no part of the
// spec asks for.
package config

import (
	"flag"
	"fmt"
	"time"
)

// Role is the server's replication role.
type Role string

const (
	RoleMaster  Role = "master"
	RoleReplica Role = "replica"
)

// PersistenceMode selects which durability strategy is active. The two
// are mutually exclusive per spec.md §4.4/§4.5 — IgnisDB does not run
// AOF and periodic snapshotting at once.
type PersistenceMode string

const (
	PersistenceSnapshot PersistenceMode = "snapshot"
	PersistenceAOF      PersistenceMode = "aof"
)

// Config holds every flag from spec.md §6.
type Config struct {
	Role Role
	Host string
	Port int

	MasterHost string
	MasterPort int

	PersistenceMode  PersistenceMode
	SnapshotFile     string
	AOFFile          string
	SnapshotInterval time.Duration
}

// Parse reads args (typically os.Args[1:]) into a Config, applying the
// defaults from spec.md §6: host 127.0.0.1, port 6380 for a master / 6381
// for a replica, snapshot persistence.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("ignisdb-server", flag.ContinueOnError)

	role := fs.String("role", "master", "server role: master or replica")
	host := fs.String("host", "127.0.0.1", "host to bind to")
	port := fs.Int("port", 0, "port to listen on (default 6380 master / 6381 replica)")
	masterHost := fs.String("master-host", "", "master host (replica only)")
	masterPort := fs.Int("master-port", 6380, "master port (replica only)")
	persistenceMode := fs.String("persistence-mode", "snapshot", "persistence strategy: snapshot or aof")
	snapshotFile := fs.String("snapshot-file", "ignisdb.snapshot", "snapshot document path")
	aofFile := fs.String("aof-file", "ignisdb.aof", "append-only file path")
	snapshotIntervalSec := fs.Int("snapshot-interval", 60, "seconds between periodic snapshots")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		Role:             Role(*role),
		Host:             *host,
		Port:             *port,
		MasterHost:       *masterHost,
		MasterPort:       *masterPort,
		PersistenceMode:  PersistenceMode(*persistenceMode),
		SnapshotFile:     *snapshotFile,
		AOFFile:          *aofFile,
		SnapshotInterval: time.Duration(*snapshotIntervalSec) * time.Second,
	}

	if cfg.Role != RoleMaster && cfg.Role != RoleReplica {
		return nil, fmt.Errorf("invalid --role %q: must be master or replica", *role)
	}
	if cfg.PersistenceMode != PersistenceSnapshot && cfg.PersistenceMode != PersistenceAOF {
		return nil, fmt.Errorf("invalid --persistence-mode %q: must be snapshot or aof", *persistenceMode)
	}
	if cfg.Port == 0 {
		if cfg.Role == RoleReplica {
			cfg.Port = 6381
		} else {
			cfg.Port = 6380
		}
	}
	if cfg.Role == RoleReplica && cfg.MasterHost == "" {
		return nil, fmt.Errorf("--master-host is required when --role=replica")
	}

	return cfg, nil
}
