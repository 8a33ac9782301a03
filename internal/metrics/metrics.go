// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesReceivedTotal counts inbound link frames by dispatch class
	FramesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lowpan_frames_received_total",
			Help: "Total number of link frames received, by dispatch class",
		},
		[]string{"class"},
	)

	// FramesDroppedTotal counts inbound frames dropped, by reason
	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lowpan_frames_dropped_total",
			Help: "Total number of inbound frames dropped",
		},
		[]string{"reason"},
	)

	// FramesSentTotal counts link frames handed to the transceiver
	FramesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lowpan_frames_sent_total",
			Help: "Total number of link frames handed to the transceiver",
		},
	)

	// DatagramsSentTotal counts outbound datagrams by encoding
	DatagramsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lowpan_datagrams_sent_total",
			Help: "Total number of IPv6 datagrams sent, by encoding",
		},
		[]string{"encoding"},
	)

	// DatagramsDeliveredTotal counts assembled datagrams delivered to consumers
	DatagramsDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lowpan_datagrams_delivered_total",
			Help: "Total number of assembled IPv6 datagrams delivered",
		},
	)

	// ReassemblyActive tracks in-flight partial datagrams
	ReassemblyActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lowpan_reassembly_active_entries",
			Help: "Number of in-flight partial datagrams in the reassembly table",
		},
	)

	// ReassemblyCompletedTotal counts datagrams fully reassembled
	ReassemblyCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lowpan_reassembly_completed_total",
			Help: "Total number of datagrams fully reassembled",
		},
	)

	// ReassemblyExpiredTotal counts entries aged out by the sweep
	ReassemblyExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lowpan_reassembly_expired_total",
			Help: "Total number of reassembly entries expired by the age window",
		},
	)

	// ReassemblyEvictedTotal counts entries reclaimed under capacity pressure
	ReassemblyEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lowpan_reassembly_evicted_total",
			Help: "Total number of reassembly entries evicted because the table was full",
		},
	)

	// ReassemblyConflictsTotal counts protocol anomalies in fragment trains
	ReassemblyConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lowpan_reassembly_conflicts_total",
			Help: "Total number of fragments conflicting with existing reassembly state",
		},
	)

	// PoolExhaustedTotal counts receive-path drops due to a full frame pool
	PoolExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lowpan_pool_exhausted_total",
			Help: "Total number of frames dropped because the frame buffer pool was full",
		},
	)

	// ConsumerDropsTotal counts per-consumer inbox overflows
	ConsumerDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lowpan_consumer_drops_total",
			Help: "Total number of frames lost per consumer due to a full inbox",
		},
		[]string{"consumer"},
	)

	// ConsumersRegistered tracks the consumer registry population
	ConsumersRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lowpan_consumers_registered",
			Help: "Number of currently registered consumers",
		},
	)
)

// Drop reason label values used with FramesDroppedTotal.
const (
	DropMalformed = "malformed"
	DropDecode    = "decode_error"
	DropConflict  = "reassembly_conflict"
	DropPoolFull  = "pool_exhausted"
)
