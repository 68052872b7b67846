package raftleader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.etcd.io/etcd/raft/v3/raftpb"
)

const (
	raftEndpoint     = "/internal/raft/step"
	transportTimeout = 3 * time.Second
	maxSendRetries   = 3
	retryBackoff     = 100 * time.Millisecond
)

// Transport is the collaborator Manager sends outbound raft messages
// through. HTTPTransport is the concrete implementation this module
// ships; tests substitute an in-memory fake.
type Transport interface {
	Send(msg raftpb.Message) error
	AddPeer(id uint64, addr string)
	RemovePeer(id uint64)
}

// HTTPTransport posts raft messages as JSON to each peer's raftEndpoint,
// the direct generalization of pkg/raftadapter.Transport.
type HTTPTransport struct {
	mu     sync.RWMutex
	peers  map[uint64]string
	client *http.Client
}

// NewHTTPTransport returns a Transport addressing peers by the given
// raft-id -> base-URL map.
func NewHTTPTransport(peers map[uint64]string) *HTTPTransport {
	cp := make(map[uint64]string, len(peers))
	for k, v := range peers {
		cp[k] = v
	}
	return &HTTPTransport{peers: cp, client: &http.Client{Timeout: transportTimeout}}
}

func (t *HTTPTransport) AddPeer(id uint64, addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[id] = addr
}

func (t *HTTPTransport) RemovePeer(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, id)
}

func (t *HTTPTransport) Send(msg raftpb.Message) error {
	t.mu.RLock()
	addr, ok := t.peers[msg.To]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("autosharddb: unknown raft peer %d", msg.To)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("autosharddb: marshal raft message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxSendRetries; attempt++ {
		if err := t.post(addr+raftEndpoint, body); err != nil {
			lastErr = err
			slog.Warn("raftleader transport: send failed, retrying", "to", msg.To, "attempt", attempt+1, "error", err)
			time.Sleep(retryBackoff * time.Duration(attempt+1))
			continue
		}
		return nil
	}
	return fmt.Errorf("autosharddb: raft send to %d failed after %d attempts: %w", msg.To, maxSendRetries, lastErr)
}

func (t *HTTPTransport) post(url string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), transportTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("autosharddb: build raft request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("autosharddb: send raft request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("autosharddb: raft peer returned status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
