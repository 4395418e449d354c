package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Dragonsize/TDTUmes/p2p"
)

const anonymousUsername = "Anonymous"

var (
	errNotConnected     = errors.New("client is not connected")
	errAlreadyConnected = errors.New("client is already connected")
)

type MessageClientOpts struct {
	ServerAddr   string
	Username     string
	ChunkSize    int
	WriteTimeout time.Duration
}

// MessageClient is one chat participant: it sends "<username>: <message>"
// payloads to the relay and exposes whatever the relay forwards.
type MessageClient struct {
	MessageClientOpts

	transport *p2p.TCPTransport
	peer      p2p.Peer
	messages  chan []byte
	running   atomic.Bool
	connected atomic.Bool
	quitOnce  sync.Once
	quitch    chan struct{}
}

func NewMessageClient(opts MessageClientOpts) *MessageClient {
	opts.Username = normalizeUsername(opts.Username)

	c := &MessageClient{
		MessageClientOpts: opts,
		messages:          make(chan []byte, 64),
		quitch:            make(chan struct{}),
	}
	c.transport = p2p.NewTCPTransport(p2p.TCPTransportOpts{
		Decoder:      p2p.ChunkDecoder{Size: opts.ChunkSize},
		WriteTimeout: opts.WriteTimeout,
		OnChunk:      c.onChunk,
		OnPeerClosed: c.onPeerClosed,
	})
	return c
}

// Connect dials the relay and starts receiving in the background.
func (c *MessageClient) Connect() error {
	select {
	case <-c.quitch:
		return p2p.ErrClosed
	default:
	}

	if !c.connected.CompareAndSwap(false, true) {
		return errAlreadyConnected
	}

	c.running.Store(true)
	peer, err := c.transport.Dial(c.ServerAddr)
	if err != nil {
		c.running.Store(false)
		c.connected.Store(false)
		return fmt.Errorf("connect to %s: %w", c.ServerAddr, err)
	}

	c.peer = peer
	return nil
}

// Messages yields every chunk forwarded by the relay. It is closed when the
// connection ends for any reason.
func (c *MessageClient) Messages() <-chan []byte {
	return c.messages
}

func (c *MessageClient) Running() bool {
	return c.running.Load()
}

// SendMessage sends message prefixed with the client's username.
func (c *MessageClient) SendMessage(message string) error {
	if !c.running.Load() || c.peer == nil {
		return errNotConnected
	}
	return c.peer.Send([]byte(formatMessage(c.Username, message)))
}

// Disconnect closes the connection and waits for the receive loop to exit.
func (c *MessageClient) Disconnect() {
	c.quitOnce.Do(func() {
		c.running.Store(false)
		close(c.quitch)

		if c.peer != nil {
			c.peer.Close()
		}
		c.transport.Close()
	})
}

func (c *MessageClient) onChunk(_ p2p.Peer, chunk p2p.Chunk) {
	select {
	case c.messages <- chunk.Payload:
	case <-c.quitch:
	}
}

func (c *MessageClient) onPeerClosed(_ p2p.Peer, _ error) {
	c.running.Store(false)
	close(c.messages)
}

func formatMessage(username, message string) string {
	return username + ": " + message
}

func normalizeUsername(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return anonymousUsername
	}
	return name
}
