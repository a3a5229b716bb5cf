// Package main is the entry point for a homestate node.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ASHISH26940/homestate/internal/config"
	"github.com/ASHISH26940/homestate/internal/listenable"
	"github.com/ASHISH26940/homestate/internal/logging"
	"github.com/ASHISH26940/homestate/internal/persistence"
	internal_raft "github.com/ASHISH26940/homestate/internal/raft"
	"github.com/ASHISH26940/homestate/internal/repository"
	"github.com/ASHISH26940/homestate/internal/server"
	"github.com/ASHISH26940/homestate/internal/store"
	"github.com/hashicorp/raft"
	"github.com/hashicorp/raft-boltdb"
	"github.com/sirupsen/logrus"
)

var log = logging.NewLogger("homestated")

func main() {
	// --- Configuration and Flags ---
	configFile := flag.String("config", "config.toml", "Path to config file")
	bootstrap := flag.Bool("bootstrap", false, "Bootstrap the cluster (run on the first node only)")
	flag.Parse()

	cfg := config.New()
	if err := cfg.Load(*configFile); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logging.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// --- Repository and change feed ---
	repo := repository.New()
	feed := listenable.NewSerialExecutor()
	defer feed.Close()
	repo.Subscribe(feed, changeLogger())

	// --- Restore from WAL ---
	walPath := filepath.Join(cfg.DataDir, "app.wal")
	wal, err := persistence.NewWAL(walPath)
	if err != nil {
		log.Fatalf("Failed to open WAL: %v", err)
	}
	defer wal.Close()

	fsm := internal_raft.NewFSM(repo, wal)
	log.Infof("Replaying Write-Ahead Log from %s...", walPath)
	if err := persistence.Replay(walPath, fsm.Replay); err != nil {
		log.Fatalf("Failed to replay WAL: %v", err)
	}
	log.WithField("index", fsm.Applied()).Info("WAL replay complete")

	// --- Raft Setup ---
	r, err := startRaft(cfg, fsm, *bootstrap)
	if err != nil {
		log.Fatalf("Failed to start raft: %v", err)
	}

	// --- Start the HTTP Server ---
	httpServer := server.New(repo, r)
	httpServer.ApplyTimeout = cfg.ApplyTimeout.Duration
	httpAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.Infof("Starting HTTP server on %s", httpAddr)
	go func() {
		if err := http.ListenAndServe(httpAddr, httpServer); err != nil {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// --- Join an existing cluster through the configured peers ---
	if !*bootstrap && len(cfg.Peers) > 0 {
		raftAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.RaftPort)
		client := &http.Client{Timeout: cfg.ApplyTimeout.Duration}
		if err := server.Join(client, cfg.Peers, cfg.NodeID, raftAddr); err != nil {
			log.Fatalf("Failed to join cluster: %v", err)
		}
	}

	log.Info("homestate node started successfully.")
	select {}
}

func startRaft(cfg *config.Config, fsm raft.FSM, bootstrap bool) (*raft.Raft, error) {
	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeID)
	raftConfig.LogOutput = log.WriterLevel(logrus.DebugLevel)

	raftAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.RaftPort)
	addr, err := net.ResolveTCPAddr("tcp", raftAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve raft address: %w", err)
	}
	transport, err := raft.NewTCPTransport(raftAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create raft transport: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStore(cfg.DataDir, cfg.SnapshotRetain, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft.db"))
	if err != nil {
		return nil, fmt.Errorf("create bolt store: %w", err)
	}

	r, err := raft.NewRaft(raftConfig, fsm, logStore, logStore, snapshots, transport)
	if err != nil {
		return nil, fmt.Errorf("create raft node: %w", err)
	}

	if bootstrap {
		log.Info("Bootstrapping cluster...")
		bootstrapConfig := raft.Configuration{
			Servers: []raft.Server{
				{
					ID:      raft.ServerID(cfg.NodeID),
					Address: transport.LocalAddr(),
				},
			},
		}
		if err := r.BootstrapCluster(bootstrapConfig).Error(); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
			return nil, fmt.Errorf("bootstrap cluster: %w", err)
		}
	}
	return r, nil
}

// changeLogger logs what changed between consecutive snapshots, the way a
// UI would patch its view: a diff when possible, a full reload otherwise.
func changeLogger() func(*store.Frozen) {
	previous := store.Empty()
	return func(current *store.Frozen) {
		entry := log.WithFields(logrus.Fields{
			"version":      current.Version(),
			"modification": current.ModificationCount(),
		})
		events, ok := store.Diff(current, previous)
		if ok {
			entry.WithField("events", len(events)).Debug("Snapshot changed")
		} else {
			entry.WithField("items", current.Len()).Info("Snapshot reloaded")
		}
		previous = current
	}
}
