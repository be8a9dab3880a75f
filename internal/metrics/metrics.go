// Package metrics exposes Prometheus collectors for the chunk codec.
// Grounded on fpcMotif-ai-coding-playground's ffmpeg-go-relay
// internal/metrics package (promauto collector construction, counter-vec-
// by-label style), adapted to construct collectors against an injected
// prometheus.Registerer instead of registering against the package-level
// default — the codec has no ambient registry to reach for (spec.md §9).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors bundles every metric the chunk codec reports. A nil
// *Collectors is safe to use: every method is a no-op, so callers that
// don't care about metrics can pass nil through their constructors.
type Collectors struct {
	ChannelsActive    prometheus.Gauge
	ChannelsFree      prometheus.Gauge
	FramesTotal       *prometheus.CounterVec // label: direction=in|out
	MessagesTotal     *prometheus.CounterVec // label: direction=in|out
	PendingDepth      prometheus.Gauge
	ProtocolErrors    prometheus.Counter
}

// New registers and returns a Collectors bundle against reg.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		ChannelsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rtmp_chunk_channels_active",
			Help: "Number of channel ids currently allocated by the outbound muxer.",
		}),
		ChannelsFree: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rtmp_chunk_channels_free",
			Help: "Number of channel ids currently available in the outbound muxer's free pool.",
		}),
		FramesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtmp_chunk_frames_total",
			Help: "Total chunk frames processed.",
		}, []string{"direction"}),
		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtmp_chunk_messages_total",
			Help: "Total complete messages processed.",
		}, []string{"direction"}),
		PendingDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rtmp_chunk_pending_depth",
			Help: "Number of outbound messages queued waiting for a free channel.",
		}),
		ProtocolErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtmp_chunk_protocol_errors_total",
			Help: "Total fatal protocol errors raised by the codec.",
		}),
	}
}

func (c *Collectors) frame(direction string) {
	if c == nil {
		return
	}
	c.FramesTotal.WithLabelValues(direction).Inc()
}

func (c *Collectors) message(direction string) {
	if c == nil {
		return
	}
	c.MessagesTotal.WithLabelValues(direction).Inc()
}

// FrameIn records one inbound chunk frame.
func (c *Collectors) FrameIn() { c.frame("in") }

// FrameOut records one outbound chunk frame.
func (c *Collectors) FrameOut() { c.frame("out") }

// MessageIn records one complete inbound message.
func (c *Collectors) MessageIn() { c.message("in") }

// MessageOut records one complete outbound message.
func (c *Collectors) MessageOut() { c.message("out") }

// SetChannelCounts updates the active/free channel gauges.
func (c *Collectors) SetChannelCounts(active, free int) {
	if c == nil {
		return
	}
	c.ChannelsActive.Set(float64(active))
	c.ChannelsFree.Set(float64(free))
}

// SetPendingDepth updates the pending-queue depth gauge.
func (c *Collectors) SetPendingDepth(n int) {
	if c == nil {
		return
	}
	c.PendingDepth.Set(float64(n))
}

// ProtocolError records a fatal protocol error.
func (c *Collectors) ProtocolError() {
	if c == nil {
		return
	}
	c.ProtocolErrors.Inc()
}
