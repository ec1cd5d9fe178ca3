package bssr

import (
	"encoding/json"
	"io"
	"iter"
)

// Body is the payload of a buffered response. It is one of [Bytes], [Text], [Stream], [Chunks] or
// [Value]. A nil Body means no body was set.
type Body interface{ isBody() }

// Bytes is a raw byte body, written verbatim.
type Bytes []byte

// Text is a textual body, written verbatim.
type Text string

// Stream is a body that is piped to the client chunk by chunk. If the reader is also an io.Closer it
// is closed once the response ends.
type Stream struct{ io.Reader }

// Chunks is a body produced by an iterator. Iteration stops at the first error, which aborts the
// response.
type Chunks iter.Seq2[[]byte, error]

// Value is a structured body that is encoded as JSON.
type Value struct{ V any }

func (Bytes) isBody()  {}
func (Text) isBody()   {}
func (Stream) isBody() {}
func (Chunks) isBody() {}
func (Value) isBody()  {}

// ChunksOf returns a body that yields each of the given chunks in order.
func ChunksOf(chunks ...[]byte) Chunks {
	return func(yield func([]byte, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

const streamChunkSize = 32 * 1024

// readerChunks turns a reader into an iterator of chunks.
func readerChunks(r io.Reader) Chunks {
	return func(yield func([]byte, error) bool) {
		buf := make([]byte, streamChunkSize)

		for {
			n, err := r.Read(buf)
			if n > 0 && !yield(buf[:n], nil) {
				return
			}

			switch {
			case err == io.EOF:
				return
			case err != nil:
				yield(nil, err)
				return
			}
		}
	}
}

// bodyLength returns the number of bytes the body will produce on the wire, if that can be known
// without consuming it.
func bodyLength(b Body) (int64, bool, error) {
	switch b := b.(type) {
	case Bytes:
		return int64(len(b)), true, nil
	case Text:
		return int64(len(b)), true, nil
	case Value:
		data, err := json.Marshal(b.V)
		if err != nil {
			return 0, false, err
		}

		return int64(len(data)), true, nil
	case Stream:
		if l, ok := b.Reader.(interface{ Len() int }); ok {
			return int64(l.Len()), true, nil
		}
	}

	return 0, false, nil
}

// closeBody releases a body that is not going to be consumed.
func closeBody(b Body) {
	if s, ok := b.(Stream); ok {
		if c, ok := s.Reader.(io.Closer); ok {
			_ = c.Close()
		}
	}
}
