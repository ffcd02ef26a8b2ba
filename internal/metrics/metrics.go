// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package metrics exposes the bridge's Prometheus surface: a scrape-time
// Collector over the listener's live call registry and port pool, plus
// the liveness handler the supervising process checks.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rapidaai/voicebridge/internal/session"
)

// ActiveCallsProvider exposes the number of calls currently bridged.
type ActiveCallsProvider interface {
	ActiveCallCount() int
}

// SessionStatsProvider sums the counters of every live Session.
type SessionStatsProvider interface {
	AggregateStats() session.Stats
}

// PortPoolProvider exposes RTP port pool occupancy.
type PortPoolProvider interface {
	InUse() (int, error)
}

// Collector is a prometheus.Collector gathering the bridge's call, media,
// and port-pool counters at scrape time rather than on every increment.
type Collector struct {
	calls     ActiveCallsProvider
	stats     SessionStatsProvider
	rtpPool   PortPoolProvider
	startedAt time.Time

	activeCallsDesc     *prometheus.Desc
	bytesSentDesc       *prometheus.Desc
	bytesReceivedDesc   *prometheus.Desc
	packetsSentDesc     *prometheus.Desc
	packetsReceivedDesc *prometheus.Desc
	underrunsDesc       *prometheus.Desc
	reconnectsDesc      *prometheus.Desc
	rtpPortsInUseDesc   *prometheus.Desc
	uptimeDesc          *prometheus.Desc
}

// NewCollector builds a Collector. rtpPool may be nil when the deployment
// never accepts RTP calls.
func NewCollector(calls ActiveCallsProvider, stats SessionStatsProvider, rtpPool PortPoolProvider) *Collector {
	return &Collector{
		calls:     calls,
		stats:     stats,
		rtpPool:   rtpPool,
		startedAt: time.Now(),

		activeCallsDesc:     prometheus.NewDesc("voicebridge_active_calls", "Number of calls currently bridged", nil, nil),
		bytesSentDesc:       prometheus.NewDesc("voicebridge_bytes_sent_total", "PCM bytes received from the AI for playout to the switch across all calls", nil, nil),
		bytesReceivedDesc:   prometheus.NewDesc("voicebridge_bytes_received_total", "PCM bytes received from the switch across all calls", nil, nil),
		packetsSentDesc:     prometheus.NewDesc("voicebridge_frames_sent_total", "Audio messages received from the AI for playout to the switch across all calls", nil, nil),
		packetsReceivedDesc: prometheus.NewDesc("voicebridge_frames_received_total", "Media frames received from the switch across all calls", nil, nil),
		underrunsDesc:       prometheus.NewDesc("voicebridge_jitter_underruns_total", "Jitter buffer underruns across all calls", nil, nil),
		reconnectsDesc:      prometheus.NewDesc("voicebridge_ai_reconnects_total", "AI websocket reconnect attempts across all calls", nil, nil),
		rtpPortsInUseDesc:   prometheus.NewDesc("voicebridge_rtp_ports_in_use", "RTP ports currently allocated", nil, nil),
		uptimeDesc:          prometheus.NewDesc("voicebridge_uptime_seconds", "Seconds since the process started", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeCallsDesc
	ch <- c.bytesSentDesc
	ch <- c.bytesReceivedDesc
	ch <- c.packetsSentDesc
	ch <- c.packetsReceivedDesc
	ch <- c.underrunsDesc
	ch <- c.reconnectsDesc
	ch <- c.rtpPortsInUseDesc
	ch <- c.uptimeDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.activeCallsDesc, prometheus.GaugeValue, float64(c.calls.ActiveCallCount()))

	st := c.stats.AggregateStats()
	ch <- prometheus.MustNewConstMetric(c.bytesSentDesc, prometheus.CounterValue, float64(st.BytesSent))
	ch <- prometheus.MustNewConstMetric(c.bytesReceivedDesc, prometheus.CounterValue, float64(st.BytesReceived))
	ch <- prometheus.MustNewConstMetric(c.packetsSentDesc, prometheus.CounterValue, float64(st.PacketsSent))
	ch <- prometheus.MustNewConstMetric(c.packetsReceivedDesc, prometheus.CounterValue, float64(st.PacketsReceived))
	ch <- prometheus.MustNewConstMetric(c.underrunsDesc, prometheus.CounterValue, float64(st.Underruns))
	ch <- prometheus.MustNewConstMetric(c.reconnectsDesc, prometheus.CounterValue, float64(st.ReconnectAttempts))

	if c.rtpPool != nil {
		if inUse, err := c.rtpPool.InUse(); err == nil {
			ch <- prometheus.MustNewConstMetric(c.rtpPortsInUseDesc, prometheus.GaugeValue, float64(inUse))
		}
	}

	ch <- prometheus.MustNewConstMetric(c.uptimeDesc, prometheus.GaugeValue, time.Since(c.startedAt).Seconds())
}

// Healthz answers the supervising process's liveness probe.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
