package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Dragonsize/TDTUmes/p2p"
)

type RelayServerOpts struct {
	Transport p2p.Transport
	Registry  *PeerRegistry
}

// RelayServer rebroadcasts every chunk a client sends to all other
// connected clients.
type RelayServer struct {
	RelayServerOpts

	stopOnce sync.Once
	quitch   chan struct{}
}

func NewRelayServer(opts RelayServerOpts) *RelayServer {
	if opts.Registry == nil {
		opts.Registry = NewPeerRegistry()
	}

	return &RelayServer{
		RelayServerOpts: opts,
		quitch:          make(chan struct{}),
	}
}

// OnPeer registers a freshly accepted peer. It fails once the server has
// been stopped, which makes the transport drop the connection.
func (s *RelayServer) OnPeer(p p2p.Peer) error {
	if err := s.Registry.Register(p); err != nil {
		return err
	}

	slog.Info("Client connected",
		"peer_id", p.ID(),
		"addr", p.RemoteAddr().String(),
		"total_clients", s.Registry.Len(),
	)
	return nil
}

// OnChunk fans a received chunk out to every other registered peer.
func (s *RelayServer) OnChunk(p p2p.Peer, chunk p2p.Chunk) {
	delivered := s.Registry.Broadcast(chunk.Payload, p)

	slog.Debug("Relayed chunk",
		"peer_id", p.ID(),
		"addr", chunk.From,
		"bytes", len(chunk.Payload),
		"delivered", delivered,
	)
}

// OnPeerClosed drops the peer from the registry when its receive loop ends.
func (s *RelayServer) OnPeerClosed(p p2p.Peer, err error) {
	s.Registry.Unregister(p)

	if p2p.IsExpectedCloseError(err) {
		slog.Info("Client disconnected", "peer_id", p.ID(), "addr", p.RemoteAddr().String())
		return
	}
	slog.Warn("Client dropped", "peer_id", p.ID(), "addr", p.RemoteAddr().String(), "error", err)
}

func (s *RelayServer) Addr() string {
	return s.Transport.Addr()
}

func (s *RelayServer) Start() error {
	if err := s.Transport.ListenAndAccept(); err != nil {
		return err
	}

	slog.Info("Server started", "addr", s.Transport.Addr())
	return nil
}

// Stop closes every client, empties the registry and closes the listener.
// It returns once the accept loop and all receive loops have exited.
func (s *RelayServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.quitch)

		closed := s.Registry.Shutdown()
		if err := s.Transport.Close(); err != nil {
			slog.Error("Error closing transport", "error", err)
		}

		slog.Info("Server stopped", "disconnected_clients", closed)
	})
}

// Done is closed when Stop begins.
func (s *RelayServer) Done() <-chan struct{} {
	return s.quitch
}

// Run starts the server and blocks until ctx is cancelled, then stops it.
func (s *RelayServer) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-s.quitch:
	}

	s.Stop()
	return nil
}
