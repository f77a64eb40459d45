package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/room4-2/zellolink/codec"
)

var (
	// ErrStreamClosed is returned when a packet or a second stop reaches a
	// stream whose sentinel has already been queued
	ErrStreamClosed = errors.New("stream is closed")

	// ErrStreamConsumed is returned when Decode or Drain is called on a
	// stream that already has a consumer
	ErrStreamConsumed = errors.New("stream already consumed")

	// ErrNoDecoder is returned by Decode when the stream has no decoder factory
	ErrNoDecoder = errors.New("no frame decoder configured")
)

// FrameDecoder decompresses a single audio packet into PCM.
// Implementations keep per-stream state and are used from one goroutine.
type FrameDecoder interface {
	Decode(packet []byte, frameSize int) ([]byte, error)
}

// DecoderFactory builds a FrameDecoder for a stream's sample rate and channel count
type DecoderFactory func(sampleRateHz, channels int) (FrameDecoder, error)

// State of an incoming stream's queue
type State int32

const (
	StateOpen     State = iota // accepting packets
	StateClosing               // sentinel queued, earlier packets may remain
	StateDrained               // sentinel consumed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateDrained:
		return "drained"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// DecodeError wraps a frame decoder failure for one packet. It does not end
// the PCM sequence.
type DecodeError struct {
	StreamID uint32
	Index    uint64
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("stream %d: decode packet %d: %v", e.StreamID, e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// item is a queued packet, or the end-of-stream sentinel when end is set
type item struct {
	packet []byte
	end    bool
}

// packetQueue is an unbounded FIFO with one producer and one consumer
type packetQueue struct {
	mu    sync.Mutex
	items []item
	ready chan struct{}
}

func newPacketQueue() *packetQueue {
	return &packetQueue{ready: make(chan struct{}, 1)}
}

func (q *packetQueue) put(it item) {
	q.mu.Lock()
	q.items = append(q.items, it)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *packetQueue) get(ctx context.Context) (item, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			it := q.items[0]
			q.items[0] = item{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return it, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return item{}, ctx.Err()
		}
	}
}

func (q *packetQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IncomingAudioStream is one inbound audio transmission. The session pushes
// packets and finally the sentinel; exactly one consumer reads them back with
// Decode or Drain.
type IncomingAudioStream struct {
	ID              uint32
	SampleRateHz    uint16
	FramesPerPacket uint8
	FrameSizeMs     uint8
	Channels        int

	decoders DecoderFactory
	queue    *packetQueue
	state    atomic.Int32
	consumed atomic.Bool
	pushed   atomic.Uint64
}

// NewIncomingAudioStream creates an open mono stream described by header
func NewIncomingAudioStream(id uint32, header codec.Header, decoders DecoderFactory) *IncomingAudioStream {
	return &IncomingAudioStream{
		ID:              id,
		SampleRateHz:    header.SampleRateHz,
		FramesPerPacket: header.FramesPerPacket,
		FrameSizeMs:     header.FrameSizeMs,
		Channels:        1,
		decoders:        decoders,
		queue:           newPacketQueue(),
	}
}

// FrameSize is the number of samples per channel the decoder produces for one packet
func (s *IncomingAudioStream) FrameSize() int {
	return int(s.SampleRateHz/1000) * int(s.FrameSizeMs) * int(s.FramesPerPacket)
}

// State reports the queue state
func (s *IncomingAudioStream) State() State {
	return State(s.state.Load())
}

// Pending returns the number of queued items, the sentinel included
func (s *IncomingAudioStream) Pending() int {
	return s.queue.len()
}

// Received returns how many packets were accepted by Push
func (s *IncomingAudioStream) Received() uint64 {
	return s.pushed.Load()
}

// Push queues one encoded packet. Only the session loop calls it.
func (s *IncomingAudioStream) Push(packet []byte) error {
	if s.State() != StateOpen {
		return fmt.Errorf("stream %d: %w", s.ID, ErrStreamClosed)
	}
	s.pushed.Add(1)
	s.queue.put(item{packet: packet})
	return nil
}

// Close queues the end-of-stream sentinel
func (s *IncomingAudioStream) Close() error {
	if !s.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
		return fmt.Errorf("stream %d: %w", s.ID, ErrStreamClosed)
	}
	s.queue.put(item{end: true})
	return nil
}

// Decode returns the stream's PCM sequence. The sequence is lazy and can be
// walked once; a second call to Decode or Drain yields ErrStreamConsumed.
// Cancelling ctx abandons the stream without consuming the sentinel.
func (s *IncomingAudioStream) Decode(ctx context.Context) *PCMIterator {
	it := &PCMIterator{ctx: ctx, stream: s, frameSize: s.FrameSize()}
	if !s.consumed.CompareAndSwap(false, true) {
		it.finish(fmt.Errorf("stream %d: %w", s.ID, ErrStreamConsumed))
	}
	return it
}

// Drain discards every queued packet up to and including the sentinel
func (s *IncomingAudioStream) Drain(ctx context.Context) error {
	if !s.consumed.CompareAndSwap(false, true) {
		return fmt.Errorf("stream %d: %w", s.ID, ErrStreamConsumed)
	}
	return s.discard(ctx)
}

func (s *IncomingAudioStream) discard(ctx context.Context) error {
	for {
		it, err := s.queue.get(ctx)
		if err != nil {
			return err
		}
		if it.end {
			s.state.Store(int32(StateDrained))
			return nil
		}
	}
}

// PCMIterator walks a stream's decoded audio, one PCM chunk per packet
type PCMIterator struct {
	ctx       context.Context
	stream    *IncomingAudioStream
	decoder   FrameDecoder
	frameSize int
	index     uint64
	done      bool
	err       error
}

func (it *PCMIterator) finish(err error) {
	it.done = true
	it.err = err
}

// abandon ends the sequence with err once the rest of the queue has been
// discarded, so the stream still reaches StateDrained. If ctx ends first
// the stream stays closing and both errors are reported.
func (it *PCMIterator) abandon(err error) error {
	if derr := it.stream.discard(it.ctx); derr != nil {
		err = errors.Join(err, derr)
	}
	it.finish(err)
	return err
}

// Next returns the next PCM chunk. It returns io.EOF once the sentinel has
// been consumed. A *DecodeError covers a single packet and iteration may
// continue; any other error is terminal and is returned from then on.
func (it *PCMIterator) Next() ([]byte, error) {
	if it.done {
		return nil, it.err
	}

	if it.decoder == nil {
		if it.stream.decoders == nil {
			return nil, it.abandon(fmt.Errorf("stream %d: %w", it.stream.ID, ErrNoDecoder))
		}
		dec, err := it.stream.decoders(int(it.stream.SampleRateHz), it.stream.Channels)
		if err != nil {
			return nil, it.abandon(fmt.Errorf("stream %d: create decoder: %w", it.stream.ID, err))
		}
		it.decoder = dec
	}

	next, err := it.stream.queue.get(it.ctx)
	if err != nil {
		it.finish(err)
		return nil, err
	}
	if next.end {
		it.stream.state.Store(int32(StateDrained))
		it.finish(io.EOF)
		return nil, io.EOF
	}

	idx := it.index
	it.index++
	pcm, err := it.decoder.Decode(next.packet, it.frameSize)
	if err != nil {
		return nil, &DecodeError{StreamID: it.stream.ID, Index: idx, Err: err}
	}
	return pcm, nil
}

// All adapts the iterator for range-over-func. The sequence stops after the
// sentinel or a terminal error.
func (it *PCMIterator) All() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			pcm, err := it.Next()
			if errors.Is(err, io.EOF) && it.done {
				return
			}
			if !yield(pcm, err) || it.done {
				return
			}
		}
	}
}
