package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"autosharddb/pkg/dberrors"
	"autosharddb/pkg/localcluster"
	"autosharddb/pkg/types"
)

const defaultShutdownTimeout = 5 * time.Second

// Handler is the local-execution surface an RPC server dispatches onto.
// autosharded.Handler (the context-aware adapter over autosharded.Storage)
// satisfies it structurally without either package importing the other, the same decoupling internal/rpc/server.go gets
// from its StoreAPI interface.
type Handler interface {
	CreateRecord(ctx context.Context, rid types.RID, content []byte, version types.RecordVersion, recordType byte) (types.PhysicalPosition, error)
	ReadRecord(ctx context.Context, rid types.RID) (localcluster.RawBuffer, error)
	UpdateRecord(ctx context.Context, rid types.RID, content []byte, version types.RecordVersion, recordType byte) (types.RecordVersion, error)
	DeleteRecord(ctx context.Context, rid types.RID, version types.RecordVersion, forwarded bool) (bool, error)
}

// Server exposes a Handler over HTTP for RemoteNode peers to reach.
type Server struct {
	handler    Handler
	httpServer *http.Server
	addr       string
}

// NewServer returns a Server that will listen on addr once Start is
// called.
func NewServer(handler Handler, addr string) *Server {
	return &Server{handler: handler, addr: addr}
}

func (s *Server) httpHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/dht/create", s.handleCreate)
	mux.HandleFunc("/dht/read", s.handleRead)
	mux.HandleFunc("/dht/update", s.handleUpdate)
	mux.HandleFunc("/dht/delete", s.handleDelete)
	return mux
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.httpHandler(),
		ReadHeaderTimeout: time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("dht rpc server error", "error", err)
		}
	}()
	slog.Info("dht rpc server started", "addr", s.addr)
	return nil
}

func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// requestID generates a correlation id for one inbound RPC and stamps it
// on the response's X-Request-Id header. The id is local to this server:
// RemoteNode neither sends nor reads it, so it is not carried across hops.
func requestID(w http.ResponseWriter) string {
	id := uuid.NewString()
	w.Header().Set("X-Request-Id", id)
	return id
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("dht rpc: encode response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, reqID string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dberrors.ErrNotFound), errors.Is(err, localcluster.ErrRecordNotFound), errors.Is(err, localcluster.ErrClusterNotFound):
		status = http.StatusNotFound
	case errors.Is(err, localcluster.ErrRecordDuplicated):
		status = http.StatusConflict
	case errors.Is(err, dberrors.ErrInvalidArgument), errors.Is(err, localcluster.ErrVersionConflict):
		status = http.StatusBadRequest
	}
	slog.Debug("dht rpc: request failed", "request_id", reqID, "status", status, "error", err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, reqID, fmt.Errorf("%w: %v", dberrors.ErrInvalidArgument, err))
		return
	}
	pp, err := s.handler.CreateRecord(r.Context(), req.RID.toRID(), req.Content, types.RecordVersion(req.Version), req.RecordType)
	if err != nil {
		s.writeError(w, reqID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, createResponse{
		DataSegmentID:  pp.DataSegmentID,
		DataSegmentPos: pp.DataSegmentPos,
		RecordType:     pp.RecordType,
		RecordVersion:  uint32(pp.RecordVersion),
	})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)
	var req readRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, reqID, fmt.Errorf("%w: %v", dberrors.ErrInvalidArgument, err))
		return
	}
	rb, err := s.handler.ReadRecord(r.Context(), req.RID.toRID())
	if err != nil {
		s.writeError(w, reqID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, readResponse{Content: rb.Content, RecordType: rb.RecordType, Version: uint32(rb.Version)})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, reqID, fmt.Errorf("%w: %v", dberrors.ErrInvalidArgument, err))
		return
	}
	version, err := s.handler.UpdateRecord(r.Context(), req.RID.toRID(), req.Content, types.RecordVersion(req.Version), req.RecordType)
	if err != nil {
		s.writeError(w, reqID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updateResponse{Version: uint32(version)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, reqID, fmt.Errorf("%w: %v", dberrors.ErrInvalidArgument, err))
		return
	}
	deleted, err := s.handler.DeleteRecord(r.Context(), req.RID.toRID(), types.RecordVersion(req.Version), req.Forwarded)
	if err != nil {
		s.writeError(w, reqID, err)
		return
	}
	slog.Debug("dht rpc: delete forwarded", "request_id", reqID, "forwarded", req.Forwarded, "deleted", deleted)
	s.writeJSON(w, http.StatusOK, deleteResponse{Deleted: deleted})
}
