package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/room4-2/zellolink/messages"
	"github.com/room4-2/zellolink/metrics"
	"github.com/room4-2/zellolink/stream"
)

const defaultMaxSize = 5 * 1024 * 1024 // 5MB of PCM, about 2.7 minutes at 16kHz

// ErrEmptyRecording is returned when a stream ends without any decodable audio
var ErrEmptyRecording = errors.New("recording has no audio")

// Transcriber turns a WAV file into text
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Recording describes one saved transmission
type Recording struct {
	ID         string
	StreamID   uint32
	Channel    string
	From       string
	Path       string
	Bytes      int
	Duration   time.Duration
	Transcript string
	StartedAt  time.Time
}

// Recorder saves each incoming stream as a WAV file
type Recorder struct {
	dir         string
	maxSize     int
	transcriber Transcriber
	logger      logrus.FieldLogger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// Option configures a Recorder
type Option func(*Recorder)

// WithMaxSize bounds the PCM kept per stream
func WithMaxSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.maxSize = n
		}
	}
}

// WithTranscriber enables transcription of saved recordings
func WithTranscriber(t Transcriber) Option {
	return func(r *Recorder) {
		r.transcriber = t
	}
}

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithMetrics sets the collectors the recorder reports to
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// New creates a recorder writing under dir, creating it if needed
func New(dir string, opts ...Option) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	r := &Recorder{
		dir:     dir,
		maxSize: defaultMaxSize,
		logger:  logrus.StandardLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.NewUnregistered()
	}
	return r, nil
}

// Record consumes st until its sentinel and saves the decoded audio.
// A stream that outgrows the buffer is still consumed to the end, then
// discarded with an error wrapping ErrBufferFull.
func (r *Recorder) Record(ctx context.Context, start *messages.StreamStart, st *stream.IncomingAudioStream) (*Recording, error) {
	log := r.logger.WithFields(logrus.Fields{
		"stream_id": st.ID,
		"channel":   start.Channel,
		"from":      start.From,
	})
	startedAt := r.now()

	buf := newPCMBuffer(r.maxSize)
	decodeErrors := 0

	for pcm, err := range st.Decode(ctx).All() {
		if err != nil {
			var decodeErr *stream.DecodeError
			if errors.As(err, &decodeErr) {
				decodeErrors++
				log.WithError(err).Debug("⚠️ Skipping undecodable packet")
				continue
			}
			return nil, err
		}
		if err := buf.write(pcm); err != nil {
			log.WithField("max_bytes", r.maxSize).Warn("⚠️ Recording exceeds buffer, discarding")
		}
	}

	if buf.overflow {
		r.metrics.RecordingsDropped.Inc()
		return nil, fmt.Errorf("stream %d: %w", st.ID, ErrBufferFull)
	}

	pcm := buf.pcm()
	if len(pcm) == 0 {
		return nil, fmt.Errorf("stream %d: %w", st.ID, ErrEmptyRecording)
	}

	rec := &Recording{
		ID:        uuid.New().String(),
		StreamID:  st.ID,
		Channel:   start.Channel,
		From:      start.From,
		Bytes:     len(pcm),
		StartedAt: startedAt,
	}
	seconds := PCMDuration(len(pcm), int(st.SampleRateHz), st.Channels)
	rec.Duration = time.Duration(seconds * float64(time.Second))

	wav := EncodeWAV(pcm, int(st.SampleRateHz), st.Channels)
	rec.Path = filepath.Join(r.dir, rec.ID+".wav")
	if err := os.WriteFile(rec.Path, wav, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write recording: %w", err)
	}

	r.metrics.RecordingsSaved.Inc()
	r.metrics.RecordingDuration.Observe(seconds)
	log.WithFields(logrus.Fields{
		"path":          rec.Path,
		"duration":      rec.Duration.String(),
		"decode_errors": decodeErrors,
	}).Info("💾 Recording saved")

	if r.transcriber != nil {
		r.transcribe(ctx, rec, wav, log)
	}
	return rec, nil
}

// transcribe fills rec.Transcript and writes it next to the WAV. Failures
// are logged and leave the recording in place.
func (r *Recorder) transcribe(ctx context.Context, rec *Recording, wav []byte, log logrus.FieldLogger) {
	text, err := r.transcriber.Transcribe(ctx, wav)
	if err != nil {
		r.metrics.TranscriptionFailures.Inc()
		log.WithError(err).Error("❌ Transcription failed")
		return
	}
	rec.Transcript = text

	path := filepath.Join(r.dir, rec.ID+".txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		log.WithError(err).Warn("⚠️ Failed to write transcript")
	}
	log.WithField("transcript", text).Info("📝 Transcribed")
}
