package p2p

// DefaultChunkSize is the read size used when a decoder is not given one.
const DefaultChunkSize = 1024

// Chunk holds the bytes returned by a single read on a peer connection.
// There is no guarantee a chunk lines up with a logical message.
type Chunk struct {
	From    string
	Payload []byte
}
