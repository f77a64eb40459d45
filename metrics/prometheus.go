package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors for a channel session and the
// recorders fed by it
type Metrics struct {
	// Transport and control plane
	FramesReceived  *prometheus.CounterVec // by frame kind
	ControlMessages *prometheus.CounterVec // by command
	MalformedFrames *prometheus.CounterVec // by reason
	ServerErrors    *prometheus.CounterVec // by error kind

	// Streams
	ActiveStreams       prometheus.Gauge
	StreamsStarted      prometheus.Counter
	StreamsStopped      prometheus.Counter
	AudioPackets        prometheus.Counter
	ImagePackets        prometheus.Counter
	UnknownStreamEvents *prometheus.CounterVec // by event: audio, stop

	// Recording and transcription
	RecordingsSaved       prometheus.Counter
	RecordingsDropped     prometheus.Counter
	RecordingDuration     prometheus.Histogram
	TranscriptionFailures prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FramesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ptt_frames_received_total",
			Help: "Total number of transport frames received, by kind",
		}, []string{"kind"}),
		ControlMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ptt_control_messages_total",
			Help: "Total number of control messages received, by command",
		}, []string{"command"}),
		MalformedFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ptt_malformed_frames_total",
			Help: "Total number of frames that failed to decode, by reason",
		}, []string{"reason"}),
		ServerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ptt_server_errors_total",
			Help: "Total number of fatal server errors, by kind",
		}, []string{"kind"}),

		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ptt_active_streams",
			Help: "Current number of open incoming audio streams",
		}),
		StreamsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ptt_streams_started_total",
			Help: "Total number of incoming audio streams started",
		}),
		StreamsStopped: factory.NewCounter(prometheus.CounterOpts{
			Name: "ptt_streams_stopped_total",
			Help: "Total number of incoming audio streams stopped",
		}),
		AudioPackets: factory.NewCounter(prometheus.CounterOpts{
			Name: "ptt_audio_packets_total",
			Help: "Total number of audio packets queued for decoding",
		}),
		ImagePackets: factory.NewCounter(prometheus.CounterOpts{
			Name: "ptt_image_packets_total",
			Help: "Total number of image packets received",
		}),
		UnknownStreamEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ptt_unknown_stream_events_total",
			Help: "Total number of audio packets or stops referencing a stream that is not open",
		}, []string{"event"}),

		RecordingsSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "ptt_recordings_saved_total",
			Help: "Total number of recordings written to disk",
		}),
		RecordingsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "ptt_recordings_dropped_total",
			Help: "Total number of recordings discarded because they exceeded the buffer limit",
		}),
		RecordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ptt_recording_duration_seconds",
			Help:    "Duration of recorded transmissions",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ptt_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
	}
}

// NewUnregistered creates collectors that are not exposed anywhere
func NewUnregistered() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
