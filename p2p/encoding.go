package p2p

import (
	"io"
)

type Decoder interface {
	Decode(io.Reader, *Chunk) error
}

// ChunkDecoder hands back whatever a single read yields, up to Size bytes.
type ChunkDecoder struct {
	Size int
}

func (dec ChunkDecoder) Decode(r io.Reader, msg *Chunk) error {
	size := dec.Size
	if size <= 0 {
		size = DefaultChunkSize
	}

	buf := make([]byte, size)
	for {
		n, err := r.Read(buf)
		// Bytes read alongside an error are still delivered; the error
		// surfaces again on the next read.
		if n > 0 {
			msg.Payload = buf[:n]
			return nil
		}
		if err != nil {
			return err
		}
	}
}
