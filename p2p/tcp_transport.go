package p2p

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Dragonsize/TDTUmes/metrics"
	"github.com/google/uuid"
)

// TCPPeer is a remote node over an established TCP connection.
type TCPPeer struct {
	// conn is the underlying TCP connection of the peer.
	conn net.Conn

	// true if we dial and retrieve a conn
	// false if we accept and retrieve a conn
	outbound bool

	id           string
	addr         net.Addr
	decoder      Decoder
	writeTimeout time.Duration

	closeOnce sync.Once
	closed    atomic.Bool
}

func NewTCPPeer(conn net.Conn, outbound bool) *TCPPeer {
	return &TCPPeer{
		conn:     conn,
		outbound: outbound,
		id:       uuid.NewString(),
		addr:     conn.RemoteAddr(),
		decoder:  ChunkDecoder{},
	}
}

// ID implements the Peer interface.
func (p *TCPPeer) ID() string {
	return p.id
}

// RemoteAddr implements the Peer interface.
func (p *TCPPeer) RemoteAddr() net.Addr {
	return p.addr
}

func (p *TCPPeer) Outbound() bool {
	return p.outbound
}

// Receive implements the Peer interface. It blocks until the next chunk
// arrives, the remote end hangs up (io.EOF), or the peer is closed.
func (p *TCPPeer) Receive() (Chunk, error) {
	if p.closed.Load() {
		return Chunk{}, ErrClosed
	}

	chunk := Chunk{From: p.addr.String()}
	if err := p.decoder.Decode(p.conn, &chunk); err != nil {
		if p.closed.Load() {
			return Chunk{}, ErrClosed
		}
		return Chunk{}, classifyError(err)
	}
	return chunk, nil
}

// Send implements the Peer interface. There is no retry: any failure is
// final for this connection.
func (p *TCPPeer) Send(b []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}

	if p.writeTimeout > 0 {
		if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
			return classifyError(err)
		}
	}

	if _, err := p.conn.Write(b); err != nil {
		if p.closed.Load() {
			return ErrClosed
		}
		return classifyError(err)
	}
	return nil
}

// Close implements the Peer interface. Only the first call closes the
// socket; later calls return nil.
func (p *TCPPeer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		err = p.conn.Close()
	})
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

type TCPTransportOpts struct {
	ListenAddr   string
	Decoder      Decoder
	WriteTimeout time.Duration

	// OnPeer runs in the accept loop before the receive loop is spawned.
	// A non-nil error drops the peer.
	OnPeer func(Peer) error
	// OnChunk runs on the peer's receive loop for every chunk read.
	OnChunk func(Peer, Chunk)
	// OnPeerClosed runs exactly once when the receive loop exits, before
	// the peer is closed. err is why the loop stopped.
	OnPeerClosed func(Peer, error)
}

type TCPTransport struct {
	TCPTransportOpts

	mu       sync.Mutex
	listener net.Listener
	peers    map[*TCPPeer]struct{}
	closing  atomic.Bool
	quitch   chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup
}

func NewTCPTransport(opts TCPTransportOpts) *TCPTransport {
	if opts.Decoder == nil {
		opts.Decoder = ChunkDecoder{}
	}
	return &TCPTransport{
		TCPTransportOpts: opts,
		peers:            make(map[*TCPPeer]struct{}),
		quitch:           make(chan struct{}),
	}
}

// Addr implements the Transport interface. Once listening it reports the
// bound address, so ":0" resolves to the real port.
func (t *TCPTransport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.ListenAddr
}

// Close implements the Transport interface. It stops the accept loop, closes
// every peer the transport still tracks and waits for all receive loops to
// return.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	t.closing.Store(true)
	ln := t.listener
	peers := make([]*TCPPeer, 0, len(t.peers))
	for peer := range t.peers {
		peers = append(peers, peer)
	}
	t.mu.Unlock()

	t.quitOnce.Do(func() { close(t.quitch) })

	var err error
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}

	for _, peer := range peers {
		peer.Close()
	}

	t.wg.Wait()
	return err
}

// Dial implements the Transport interface. The returned peer already has
// its receive loop running.
func (t *TCPTransport) Dial(addr string) (Peer, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, classifyError(err)
	}

	peer := t.newPeer(conn, true)
	if err := t.startPeer(peer); err != nil {
		return nil, err
	}
	return peer, nil
}

func (t *TCPTransport) ListenAndAccept() error {
	ln, err := net.Listen("tcp", t.ListenAddr)
	if err != nil {
		return err
	}
	return t.Serve(ln)
}

// Serve starts the accept loop on an existing listener. The transport takes
// ownership of ln and closes it on Close.
func (t *TCPTransport) Serve(ln net.Listener) error {
	t.mu.Lock()
	if t.closing.Load() {
		t.mu.Unlock()
		ln.Close()
		return ErrClosed
	}
	t.listener = ln
	t.wg.Add(1)
	t.mu.Unlock()

	go t.startAcceptLoop(ln)

	slog.Info("TCP transport listening", "addr", ln.Addr().String())
	return nil
}

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

func (t *TCPTransport) startAcceptLoop(ln net.Listener) {
	defer t.wg.Done()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if t.closing.Load() || errors.Is(err, net.ErrClosed) {
				slog.Info("TCP transport stopped accepting", "addr", ln.Addr().String())
				return
			}

			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay = min(delay*2, maxAcceptDelay)
			}
			slog.Warn("TCP accept error", "error", err, "retry_in", delay)
			metrics.AcceptErrorsTotal.Inc()

			select {
			case <-time.After(delay):
			case <-t.quitch:
				return
			}
			continue
		}
		delay = 0

		peer := t.newPeer(conn, false)
		slog.Info("Accepted connection", "peer_id", peer.ID(), "addr", peer.RemoteAddr().String())
		t.startPeer(peer)
	}
}

func (t *TCPTransport) newPeer(conn net.Conn, outbound bool) *TCPPeer {
	peer := NewTCPPeer(conn, outbound)
	peer.decoder = t.Decoder
	peer.writeTimeout = t.WriteTimeout
	return peer
}

func (t *TCPTransport) startPeer(peer *TCPPeer) error {
	if t.OnPeer != nil {
		if err := t.OnPeer(peer); err != nil {
			slog.Warn("dropping peer connection", "peer_id", peer.ID(), "addr", peer.RemoteAddr().String(), "error", err)
			peer.Close()
			return err
		}
	}

	// Tracking and wg.Add happen under mu so Close never misses a peer
	// that is about to start its receive loop.
	t.mu.Lock()
	if t.closing.Load() {
		t.mu.Unlock()
		peer.Close()
		if t.OnPeerClosed != nil {
			t.OnPeerClosed(peer, ErrClosed)
		}
		return ErrClosed
	}
	t.peers[peer] = struct{}{}
	t.wg.Add(1)
	t.mu.Unlock()

	go t.handleConn(peer)
	return nil
}

// handleConn is the receive loop: it owns the read side of peer until the
// stream ends or fails.
func (t *TCPTransport) handleConn(peer *TCPPeer) {
	var err error
	defer func() {
		if t.OnPeerClosed != nil {
			t.OnPeerClosed(peer, err)
		}
		peer.Close()

		t.mu.Lock()
		delete(t.peers, peer)
		t.mu.Unlock()

		t.wg.Done()
	}()

	for {
		var chunk Chunk
		chunk, err = peer.Receive()
		if err != nil {
			return
		}

		metrics.ChunksReceivedTotal.Inc()
		if t.OnChunk != nil {
			t.OnChunk(peer, chunk)
		}
	}
}
