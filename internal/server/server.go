// Package server handles the HTTP API over the home-screen repository.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/ASHISH26940/homestate/internal/logging"
	"github.com/ASHISH26940/homestate/internal/model"
	internal_raft "github.com/ASHISH26940/homestate/internal/raft"
	"github.com/ASHISH26940/homestate/internal/store"
	"github.com/ASHISH26940/homestate/internal/transaction"
	"github.com/hashicorp/raft"
)

var log = logging.NewLogger("server")

// Headers carrying snapshot counters and the change owner.
const (
	HeaderVersion      = "X-Snapshot-Version"
	HeaderModification = "X-Snapshot-Modification"
	HeaderOwner        = "X-Owner"
)

// SnapshotSource is what the server reads from. Reads always go to a frozen
// snapshot, never to the live store.
type SnapshotSource interface {
	Current() *store.Frozen
}

// RaftNode is the subset of *raft.Raft the server uses.
type RaftNode interface {
	State() raft.RaftState
	Leader() raft.ServerAddress
	Apply(cmd []byte, timeout time.Duration) raft.ApplyFuture
	AddVoter(id raft.ServerID, address raft.ServerAddress, prevIndex uint64, timeout time.Duration) raft.IndexFuture
}

// Server is the HTTP server for the home-screen state.
type Server struct {
	repo   SnapshotSource
	raft   RaftNode
	txs    *transaction.Manager
	router *http.ServeMux

	// ApplyTimeout bounds how long a write waits for raft to commit.
	ApplyTimeout time.Duration
}

// New creates a new Server instance.
func New(repo SnapshotSource, r RaftNode) *Server {
	s := &Server{
		repo:         repo,
		raft:         r,
		txs:          transaction.NewManager(),
		router:       http.NewServeMux(),
		ApplyTimeout: 5 * time.Second,
	}
	s.registerRoutes()
	return s
}

// ServeHTTP makes our Server a standard http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("GET /items", s.handleList)
	s.router.HandleFunc("GET /items/{id}", s.handleGet)
	s.router.HandleFunc("POST /items", s.leaderOnly(s.handleAdd))
	s.router.HandleFunc("PUT /items/{id}", s.leaderOnly(s.handleReplace))
	s.router.HandleFunc("DELETE /items/{id}", s.leaderOnly(s.handleDelete))
	s.router.HandleFunc("GET /changes", s.handleChanges)

	s.router.HandleFunc("POST /tx", s.leaderOnly(s.handleBegin))
	s.router.HandleFunc("POST /tx/{id}", s.leaderOnly(s.handleStage))
	s.router.HandleFunc("POST /tx/{id}/commit", s.leaderOnly(s.handleCommit))
	s.router.HandleFunc("DELETE /tx/{id}", s.leaderOnly(s.handleAbort))

	s.router.HandleFunc("POST /join", s.handleJoin)
}

// leaderOnly rejects writes on followers and points the client at the leader.
func (s *Server) leaderOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.raft.State() != raft.Leader {
			leaderAddr := string(s.raft.Leader())
			http.Error(w, "Writes must be sent to the leader at: "+leaderAddr, http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

type snapshotResponse struct {
	Version      int64        `json:"version"`
	Modification int          `json:"modification"`
	Items        []model.Item `json:"items"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	current := s.repo.Current()
	items := slices.Collect(current.Items())
	if items == nil {
		items = []model.Item{}
	}
	writeJSON(w, current, http.StatusOK, snapshotResponse{
		Version:      current.Version(),
		Modification: current.ModificationCount(),
		Items:        items,
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	current := s.repo.Current()
	item, ok := current.Get(id)
	if !ok {
		http.Error(w, "Item not found", http.StatusNotFound)
		return
	}
	writeJSON(w, current, http.StatusOK, item)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var items []model.Item
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s.apply(w, internal_raft.Command{Op: internal_raft.OpAdd, Owner: r.Header.Get(HeaderOwner), Items: items}, http.StatusCreated)
}

func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var item model.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	item.ID = id
	s.apply(w, internal_raft.Command{Op: internal_raft.OpUpdate, Owner: r.Header.Get(HeaderOwner), Items: []model.Item{item}}, http.StatusOK)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.apply(w, internal_raft.Command{Op: internal_raft.OpRemove, Owner: r.Header.Get(HeaderOwner), IDs: []int{id}}, http.StatusOK)
}

type changesResponse struct {
	Version      int64       `json:"version"`
	Modification int         `json:"modification"`
	Events       []eventJSON `json:"events"`
}

// handleChanges returns the events since the client's baseline, or 409 when
// the client must reload with GET /items.
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	version, err := strconv.ParseInt(query.Get("version"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid version", http.StatusBadRequest)
		return
	}
	modification, err := strconv.Atoi(query.Get("modification"))
	if err != nil {
		http.Error(w, "Invalid modification", http.StatusBadRequest)
		return
	}

	current := s.repo.Current()
	events, ok := store.DiffSince(current, version, modification)
	if !ok {
		setCounters(w, current)
		http.Error(w, "Baseline is stale, reload required", http.StatusConflict)
		return
	}
	writeJSON(w, current, http.StatusOK, changesResponse{
		Version:      current.Version(),
		Modification: current.ModificationCount(),
		Events:       encodeEvents(events),
	})
}

func (s *Server) handleBegin(w http.ResponseWriter, r *http.Request) {
	tx := s.txs.Begin()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": tx.ID})
}

func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	tx, err := s.txs.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	var op transaction.WriteOp
	if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	switch op.Op {
	case transaction.OpAdd:
		tx.StageAdd(op.Item)
	case transaction.OpRemove:
		tx.StageRemove(op.Item.ID)
	case transaction.OpUpdate:
		tx.StageUpdate(op.Item)
	default:
		http.Error(w, "Unknown op "+strconv.Quote(op.Op), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	tx, err := s.txs.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	// The transaction stays staged until raft accepts it, so a failed
	// commit can be retried.
	if s.apply(w, internal_raft.Command{Op: internal_raft.OpTxCommit, Owner: tx.ID, WriteSet: tx.WriteSet()}, http.StatusOK) {
		s.txs.Clear(tx.ID)
	}
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.txs.Get(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.txs.Clear(id)
	w.WriteHeader(http.StatusNoContent)
}

// apply submits cmd to the raft log and waits for the FSM to apply it. It
// reports whether the command was applied.
func (s *Server) apply(w http.ResponseWriter, cmd internal_raft.Command, status int) bool {
	cmdBytes, err := cmd.Encode()
	if err != nil {
		http.Error(w, "Failed to marshal command", http.StatusInternalServerError)
		return false
	}

	future := s.raft.Apply(cmdBytes, s.ApplyTimeout)
	if err := future.Error(); err != nil {
		http.Error(w, "Failed to apply command: "+err.Error(), http.StatusInternalServerError)
		return false
	}

	switch resp := future.Response().(type) {
	case error:
		if errors.Is(resp, internal_raft.ErrUnknownOp) {
			http.Error(w, resp.Error(), http.StatusBadRequest)
			return false
		}
		http.Error(w, resp.Error(), http.StatusInternalServerError)
		return false
	case *store.Frozen:
		setCounters(w, resp)
	}

	log.WithField("op", cmd.Op).Infof("Applied %s via Raft", cmd.Op)
	w.WriteHeader(status)
	return true
}

// handleJoin adds a new node to the Raft cluster.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	if s.raft.State() != raft.Leader {
		http.Error(w, "Can only join a cluster via the leader node", http.StatusForbidden)
		return
	}

	var joinReq struct {
		NodeID string `json:"node_id"`
		Addr   string `json:"addr"`
	}
	if err := json.NewDecoder(r.Body).Decode(&joinReq); err != nil {
		http.Error(w, "Invalid join request body", http.StatusBadRequest)
		return
	}

	if joinReq.NodeID == "" || joinReq.Addr == "" {
		http.Error(w, "Missing node_id or addr in join request", http.StatusBadRequest)
		return
	}

	log.Infof("LEADER: Received join request for node %s at %s", joinReq.NodeID, joinReq.Addr)

	future := s.raft.AddVoter(raft.ServerID(joinReq.NodeID), raft.ServerAddress(joinReq.Addr), 0, 0)
	if err := future.Error(); err != nil {
		log.Errorf("LEADER: Failed to add voter: %v", err)
		http.Error(w, "Failed to add node to cluster: "+err.Error(), http.StatusInternalServerError)
		return
	}

	log.Infof("LEADER: Successfully added node %s to the cluster", joinReq.NodeID)
	w.WriteHeader(http.StatusOK)
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid item id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func setCounters(w http.ResponseWriter, snapshot store.Snapshot) {
	w.Header().Set(HeaderVersion, strconv.FormatInt(snapshot.Version(), 10))
	w.Header().Set(HeaderModification, strconv.Itoa(snapshot.ModificationCount()))
}

func writeJSON(w http.ResponseWriter, snapshot store.Snapshot, status int, body any) {
	setCounters(w, snapshot)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warnf("Failed to write response: %v", err)
	}
}
