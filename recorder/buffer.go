package recorder

import "errors"

// ErrBufferFull is returned when a transmission outgrows the recorder's limit
var ErrBufferFull = errors.New("audio buffer full")

// pcmBuffer collects one transmission's PCM. Once a chunk would pass the
// limit the buffer drops what it holds and ignores every later write, so
// the caller can keep reading the stream to its end.
type pcmBuffer struct {
	data     []byte
	limit    int
	overflow bool
}

func newPCMBuffer(limit int) *pcmBuffer {
	return &pcmBuffer{limit: limit}
}

// write appends chunk. It returns ErrBufferFull only on the write that
// switches the buffer into overflow.
func (b *pcmBuffer) write(chunk []byte) error {
	if b.overflow {
		return nil
	}
	if len(b.data)+len(chunk) > b.limit {
		b.overflow = true
		b.data = nil
		return ErrBufferFull
	}
	b.data = append(b.data, chunk...)
	return nil
}

// pcm returns the collected audio, nil after an overflow
func (b *pcmBuffer) pcm() []byte {
	return b.data
}
