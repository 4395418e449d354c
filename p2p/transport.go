package p2p

import "net"

// Peer is one endpoint of a live byte stream, used the same way on the
// accepting and the dialing side.
type Peer interface {
	ID() string
	RemoteAddr() net.Addr
	Receive() (Chunk, error)
	Send([]byte) error
	Close() error
}

// Transport is anything that accepts and dials peers.
// This could be a TCP connection, a unix socket, or something else.
type Transport interface {
	Addr() string
	Dial(string) (Peer, error)
	ListenAndAccept() error
	Close() error
}
