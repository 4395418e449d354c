package main

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/Dragonsize/TDTUmes/metrics"
	"github.com/Dragonsize/TDTUmes/p2p"
)

// ErrRegistryClosed is returned by Register once the registry has been shut down.
var ErrRegistryClosed = errors.New("peer registry is shut down")

// PeerRegistry is the set of live server-side peers eligible for broadcast.
// Every read and write of the set happens under mu; broadcasts hold it for
// the whole fan-out so the recipients of one broadcast are exactly the
// members at call time, minus the sender, minus any that fail in that pass.
type PeerRegistry struct {
	mu     sync.Mutex
	peers  map[p2p.Peer]struct{}
	closed bool
}

func NewPeerRegistry() *PeerRegistry {
	return &PeerRegistry{
		peers: make(map[p2p.Peer]struct{}),
	}
}

// Register adds peer to the registry.
func (r *PeerRegistry) Register(peer p2p.Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	r.peers[peer] = struct{}{}
	metrics.ConnectedPeers.Set(float64(len(r.peers)))
	return nil
}

// Unregister removes peer and reports whether it was present. Removing an
// absent peer is a no-op, so cleanup paths may race freely.
func (r *PeerRegistry) Unregister(peer p2p.Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[peer]; !ok {
		return false
	}

	delete(r.peers, peer)
	metrics.ConnectedPeers.Set(float64(len(r.peers)))
	return true
}

// Broadcast sends payload to every registered peer except exclude and
// returns how many sends succeeded. Peers whose send fails are dropped
// from the registry in the same pass and closed once the lock is released.
// Send failures are never reported to the caller.
func (r *PeerRegistry) Broadcast(payload []byte, exclude p2p.Peer) int {
	delivered, failed := r.fanOut(payload, exclude)

	for _, peer := range failed {
		if err := peer.Close(); err != nil {
			slog.Debug("Error closing failed peer", "peer_id", peer.ID(), "error", err)
		}
	}
	return delivered
}

func (r *PeerRegistry) fanOut(payload []byte, exclude p2p.Peer) (int, []p2p.Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics.BroadcastsTotal.Inc()

	var (
		delivered int
		failed    []p2p.Peer
	)
	for peer := range r.peers {
		if peer == exclude {
			continue
		}
		if err := peer.Send(payload); err != nil {
			slog.Warn("Failed to send to peer, removing",
				"peer_id", peer.ID(),
				"addr", peer.RemoteAddr().String(),
				"error", err,
			)
			failed = append(failed, peer)
			continue
		}
		delivered++
	}

	for _, peer := range failed {
		delete(r.peers, peer)
	}

	metrics.ChunksDeliveredTotal.Add(float64(delivered))
	metrics.SendFailuresTotal.Add(float64(len(failed)))
	metrics.ConnectedPeers.Set(float64(len(r.peers)))

	return delivered, failed
}

// Shutdown closes every registered peer, empties the registry and rejects
// any later Register. It returns the number of peers that were closed.
func (r *PeerRegistry) Shutdown() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.peers)
	for peer := range r.peers {
		if err := peer.Close(); err != nil {
			slog.Debug("Error closing peer during shutdown", "peer_id", peer.ID(), "error", err)
		}
	}

	clear(r.peers)
	r.closed = true
	metrics.ConnectedPeers.Set(0)

	return n
}

func (r *PeerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

func (r *PeerRegistry) Contains(peer p2p.Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.peers[peer]
	return ok
}
