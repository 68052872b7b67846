// Package adminhttp is the chi-routed management surface the demo binary
// exposes alongside the peer-facing pkg/dht/rpc.Server: health, Prometheus
// metrics, and cluster/ring administration.
//
// Grounded on internal/http/server.go's Server: a narrow collaborator
// interface per concern, a createRouter building one chi.Router, and the
// same health/metrics/shutdown shape, generalized from a single Raft KV
// store to this core's cluster-admin and ring-inspection surface.
package adminhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"autosharddb/pkg/types"
)

const defaultShutdownTimeout = 5 * time.Second

// clusterAdmin is the subset of autosharded.Storage this surface drives.
type clusterAdmin interface {
	AddCluster(name string) (types.ClusterID, error)
	DropCluster(id types.ClusterID) error
	ClusterIDByName(name string) (types.ClusterID, bool)
}

// ringView is the subset of server.Instance this surface reports on.
type ringView interface {
	LocalNodeID() types.NodeID
}

// nodeLister exposes the ring's current membership for /admin/ring.
type nodeLister interface {
	Size() int
}

// leaderView is the subset of a leader.Manager implementation (such as
// pkg/raftleader.Manager) this surface reports on. Left nil, /admin/leader
// answers 503 Service Unavailable rather than panicking - a single-node
// demo run may have no election manager wired at all.
type leaderView interface {
	IsLeader() bool
	LeaderID() types.NodeID
}

// Server serves the admin HTTP surface.
type Server struct {
	storage clusterAdmin
	ring    ringView
	nodes   nodeLister
	leader  leaderView

	httpServer *http.Server
	addr       string
}

// NewServer returns a Server that will listen on addr once Start is
// called. leader may be nil when no election manager is wired.
func NewServer(storage clusterAdmin, ring ringView, nodes nodeLister, leader leaderView, addr string) *Server {
	return &Server{storage: storage, ring: ring, nodes: nodes, leader: leader, addr: addr}
}

func (s *Server) createRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/admin/ring", s.handleRing)
	r.Get("/admin/leader", s.handleLeader)
	r.Post("/admin/clusters", s.handleAddCluster)
	r.Delete("/admin/clusters/{id}", s.handleDropCluster)
	r.Get("/admin/clusters/{name}", s.handleClusterLookup)

	return r
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.createRouter(),
		ReadHeaderTimeout: time.Second,
	}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("admin http server error", "error", err)
		}
	}()
	slog.Info("admin http server started", "addr", s.addr)
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("admin http: encode response failed", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

func (s *Server) handleRing(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, struct {
		Response
		LocalNodeID string `json:"local_node_id"`
		Size        int    `json:"ring_size"`
	}{
		Response:    NewOKResponse(),
		LocalNodeID: s.ring.LocalNodeID().String(),
		Size:        s.nodes.Size(),
	})
}

func (s *Server) handleLeader(w http.ResponseWriter, r *http.Request) {
	if s.leader == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, NewErrorResponse("no election manager wired"))
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		Response
		IsLeader bool   `json:"is_leader"`
		LeaderID string `json:"leader_id"`
	}{
		Response: NewOKResponse(),
		IsLeader: s.leader.IsLeader(),
		LeaderID: s.leader.LeaderID().String(),
	})
}

func (s *Server) handleAddCluster(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("failed to parse form"))
		return
	}
	name := r.FormValue("name")
	if name == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("missing name"))
		return
	}
	id, err := s.storage.AddCluster(name)
	if err != nil {
		s.writeJSON(w, http.StatusConflict, NewErrorResponse(err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, NewClusterResponse(int16(id)))
}

func (s *Server) handleDropCluster(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseInt(raw, 10, 16)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(fmt.Sprintf("invalid cluster id %q", raw)))
		return
	}
	if err := s.storage.DropCluster(types.ClusterID(n)); err != nil {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse(err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleClusterLookup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id, ok := s.storage.ClusterIDByName(name)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse("cluster not found"))
		return
	}
	s.writeJSON(w, http.StatusOK, NewClusterResponse(int16(id)))
}
