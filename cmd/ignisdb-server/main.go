// Command ignisdb-server is the IgnisDB process entrypoint: it parses the
// CLI surface, wires the Keyspace/Dispatcher/persistence/replication
// components together, and runs the listener, the periodic snapshot
// ticker, and (on a replica) the master-reconnect loop as one supervised
// errgroup that all cancel together on graceful shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ignisdb/ignisdb/internal/aof"
	"github.com/ignisdb/ignisdb/internal/aofreplay"
	"github.com/ignisdb/ignisdb/internal/config"
	"github.com/ignisdb/ignisdb/internal/dispatcher"
	"github.com/ignisdb/ignisdb/internal/replication"
	"github.com/ignisdb/ignisdb/internal/server"
	"github.com/ignisdb/ignisdb/internal/snapshot"
	"github.com/ignisdb/ignisdb/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ignisdb-server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		return fmt.Errorf("parse configuration: %w", err)
	}

	log := zap.Must(zap.NewDevelopmentConfig().Build())
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ks := store.New()
	d := dispatcher.New(ks, log.Named("dispatcher"))

	var aofWriter *aof.Writer
	switch cfg.PersistenceMode {
	case config.PersistenceSnapshot:
		if err := snapshot.Load(cfg.SnapshotFile, ks); err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		log.Info("loaded snapshot", zap.String("path", cfg.SnapshotFile), zap.Int("keys", ks.Len()))
	case config.PersistenceAOF:
		if err := aofreplay.Load(cfg.AOFFile, d, log.Named("aofreplay")); err != nil {
			return fmt.Errorf("replay AOF: %w", err)
		}
		w, err := aof.Open(cfg.AOFFile)
		if err != nil {
			return fmt.Errorf("open AOF file: %w", err)
		}
		aofWriter = w
		d.SetAOF(w)
	}

	var replMgr *replication.Manager
	if cfg.Role == config.RoleMaster {
		replMgr = replication.NewManager(log.Named("replication"))
		d.SetPropagate(replMgr.Propagate)
	}

	srv := server.New(cfg.Role, d, replMgr, log.Named("server"))
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return srv.Serve(gctx, addr)
	})

	if cfg.Role == config.RoleMaster && cfg.PersistenceMode == config.PersistenceSnapshot {
		group.Go(func() error {
			return snapshot.RunPeriodic(gctx, cfg.SnapshotInterval, d, cfg.SnapshotFile, log.Named("snapshot"))
		})
	}

	if cfg.Role == config.RoleReplica {
		group.Go(func() error {
			replication.RunReplicaLoop(gctx, cfg.MasterHost, cfg.MasterPort, cfg.Port, d, log.Named("replication"))
			return nil
		})
	}

	err = group.Wait()

	if cfg.PersistenceMode == config.PersistenceSnapshot {
		d.WithLock(func(ks *store.Keyspace) {
			if saveErr := snapshot.Save(ks, cfg.SnapshotFile); saveErr != nil {
				log.Error("final snapshot save failed", zap.Error(saveErr))
			}
		})
	}
	if aofWriter != nil {
		if closeErr := aofWriter.Close(); closeErr != nil {
			log.Error("closing AOF file failed", zap.Error(closeErr))
		}
	}
	if replMgr != nil {
		replMgr.CloseAll()
	}

	log.Info("shutdown complete")
	return err
}
