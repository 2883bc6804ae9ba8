// Package main implements one shard of the horizontally partitioned store:
// a server process owning a private database and pushing every committed
// mutation to its peer shards.
//
// Architecture:
//
//	┌──────────────────────────────────────────┐
//	│               shardserver                │
//	├──────────────────────────────────────────┤
//	│  Wire actions:                           │
//	│    login / list_products / add_to_cart   │
//	│    view_cart / remove_from_cart          │
//	│    checkout / sync / ping                │
//	├──────────────────────────────────────────┤
//	│  Components:                             │
//	│    store        - private SQLite DB      │
//	│    cart         - local tx executor      │
//	│    replication  - fan-out + retry queue  │
//	│    health       - peer liveness probes   │
//	└──────────────────────────────────────────┘
//
// Configuration:
//   - SHARD_ID: This shard's id in the topology (required)
//   - SHARD_TOPOLOGY: Path to the cluster topology YAML (default: "topology.yaml")
//   - SHARD_DB: Path to this shard's database file (default: "shard_<id>.db")
//   - SHARD_LISTEN: Listen address (default: the topology address for SHARD_ID)
//
// Example usage:
//
//	SHARD_ID=A SHARD_TOPOLOGY=topology.yaml ./shardserver
package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AranBhambra/E-Commerce-DS/internal/account"
	"github.com/AranBhambra/E-Commerce-DS/internal/cart"
	"github.com/AranBhambra/E-Commerce-DS/internal/catalog"
	"github.com/AranBhambra/E-Commerce-DS/internal/cluster"
	"github.com/AranBhambra/E-Commerce-DS/internal/health"
	"github.com/AranBhambra/E-Commerce-DS/internal/replication"
	"github.com/AranBhambra/E-Commerce-DS/internal/store"
)

// Probe and background drain cadence.
const (
	probeInterval = 5 * time.Second
	drainInterval = 30 * time.Second
)

// logFatal is a variable to allow mocking log.Fatalf in tests.
var logFatal = log.Fatalf

func main() {
	shardID := cluster.ShardID(mustGetenv("SHARD_ID"))
	topoPath := getenv("SHARD_TOPOLOGY", "topology.yaml")
	dbPath := getenv("SHARD_DB", "shard_"+string(shardID)+".db")

	topo, err := cluster.LoadTopology(topoPath)
	if err != nil {
		logFatal("load topology: %v", err)
	}
	selfAddr, ok := topo.Addr(shardID)
	if !ok {
		logFatal("shard %s is not in the topology", shardID)
	}
	listen := getenv("SHARD_LISTEN", selfAddr)

	st, err := store.Open(dbPath)
	if err != nil {
		logFatal("open store: %v", err)
	}
	defer st.Close()

	srv := newServer(shardID, topo, st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Peer liveness probes and the scheduled drain run for the life of the
	// process; both stop when the context is canceled.
	go srv.monitor.Start(ctx)
	go srv.drainer.Run(ctx, drainInterval, srv.monitor.Roster)

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		logFatal("listen on %s: %v", listen, err)
	}
	log.Printf("shard[%s] listening on %s (db %s)", shardID, listen, dbPath)

	go acceptLoop(ctx, ln, srv)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	cancel()
	srv.monitor.Stop()
	if err := ln.Close(); err != nil {
		log.Printf("close listener: %v", err)
	}
	log.Printf("shard[%s] stopped", shardID)
}

// acceptLoop serves one goroutine per inbound connection: each connection
// carries exactly one request/response exchange and is then closed.
func acceptLoop(ctx context.Context, ln net.Listener, srv *server) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			log.Printf("accept: %v", err)
			continue
		}
		go srv.handleConn(ctx, conn)
	}
}

// newServer wires a shard's components over one store handle.
func newServer(id cluster.ShardID, topo *cluster.Topology, st *store.Store) *server {
	queue := replication.NewQueue(st)
	replicator := replication.NewReplicator(id, topo, queue)
	return &server{
		id:         id,
		topology:   topo,
		accounts:   account.NewManager(st),
		catalog:    catalog.NewManager(st),
		carts:      cart.NewExecutor(st),
		queue:      queue,
		replicator: replicator,
		drainer:    replication.NewDrainer(queue, replicator),
		monitor:    health.NewMonitor(id, topo, probeInterval),
	}
}

// getenv retrieves an environment variable with a default fallback value.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// mustGetenv retrieves a required environment variable, terminating the
// program if it's not set.
func mustGetenv(k string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	logFatal("missing env %s", k)
	return ""
}
