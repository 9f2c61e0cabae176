package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors for the bridge.
type Metrics struct {
	// Session lifecycle
	SessionsStarted prometheus.Counter
	SessionsFailed  prometheus.Counter
	SessionsActive  prometheus.Gauge

	// Audio ingest
	FramesSent    prometheus.Counter
	FramesDropped *prometheus.CounterVec

	// Turn taking
	StreamRotations prometheus.Counter
	Responses       *prometheus.CounterVec
	ActionsFired    *prometheus.CounterVec
	StreamErrors    prometheus.Counter

	// Synthesized audio
	ArtifactsWritten prometheus.Counter
	ArtifactBytes    prometheus.Histogram
}

// Default is registered with the global Prometheus registry and served by
// promhttp.Handler().
var Default = New(prometheus.DefaultRegisterer)

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) *Metrics {

	factory := promauto.With(registerer)

	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfbridge_sessions_started_total",
			Help: "Total number of Dialogflow sessions started",
		}),
		SessionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfbridge_sessions_failed_total",
			Help: "Total number of Dialogflow sessions that failed to start",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dfbridge_sessions_active",
			Help: "Current number of attached Dialogflow sessions",
		}),
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfbridge_audio_frames_sent_total",
			Help: "Total number of audio frames written to Dialogflow",
		}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dfbridge_audio_frames_dropped_total",
			Help: "Audio frames not written, by reason",
		}, []string{"reason"}),
		StreamRotations: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfbridge_stream_rotations_total",
			Help: "Total number of streams replaced to start an audio turn",
		}),
		Responses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dfbridge_responses_total",
			Help: "Responses received from Dialogflow, by event kind",
		}, []string{"kind"}),
		ActionsFired: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dfbridge_actions_total",
			Help: "Call control actions matched, by action and mode",
		}, []string{"action", "mode"}),
		StreamErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfbridge_stream_errors_total",
			Help: "Streams that finished with a non-OK status",
		}),
		ArtifactsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfbridge_audio_artifacts_written_total",
			Help: "Synthesized audio files written to disk",
		}),
		ArtifactBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dfbridge_audio_artifact_bytes",
			Help:    "Size of synthesized audio files",
			Buckets: prometheus.ExponentialBuckets(4096, 2, 10),
		}),
	}
}
