package gateway

import "io"

// Stream is a chunked reply body. Next returns chunks in arrival order;
// the concatenation of all chunks is the full reply text. Next returns
// io.EOF when the source signals end-of-stream.
type Stream struct {
	body io.ReadCloser
	buf  []byte
	err  error
}

// NewStream wraps a response body. Exposed so tests can feed scripted
// chunk sequences through the same path the client uses.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{body: body, buf: make([]byte, 4096)}
}

// Next returns the next chunk. A chunk is returned whole even when the
// underlying read also reported an error; the error surfaces on the
// following call so no trailing bytes are dropped.
func (s *Stream) Next() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	for {
		n, err := s.body.Read(s.buf)
		if n > 0 {
			if err != nil {
				s.err = err
			}
			chunk := make([]byte, n)
			copy(chunk, s.buf[:n])
			return chunk, nil
		}
		if err != nil {
			s.err = err
			return nil, err
		}
	}
}

// Close releases the underlying body. Safe to call more than once.
func (s *Stream) Close() error {
	if s.body == nil {
		return nil
	}
	err := s.body.Close()
	s.body = nil
	if s.err == nil {
		s.err = io.EOF
	}
	return err
}
