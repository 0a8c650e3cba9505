package comm

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	kindRequest  = "request"
	kindResponse = "response"
	kindSignal   = "signal"
)

var (
	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coap",
			Name:      "frames_sent_total",
			Help:      "Frames written to transports",
		},
		[]string{"kind"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coap",
			Name:      "frames_received_total",
			Help:      "Frames dispatched from transports",
		},
		[]string{"kind"},
	)
	exchangeResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coap",
			Name:      "exchange_results_total",
			Help:      "Terminated exchanges by result",
		},
		[]string{"result"},
	)
	pollCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coap",
			Name:      "poll_cycles_total",
			Help:      "Cycles run by the poll worker",
		},
	)
	pingRTT = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "coap",
			Name:      "ping_rtt_seconds",
			Help:      "Round trip time of Ping/Pong",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)
)

func init() {
	prometheus.MustRegister(framesSent, framesReceived, exchangeResults, pollCycles, pingRTT)
}

func recordResult(err error) {
	var connErr *ConnError
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrTimeout):
		result = "timeout"
	case errors.As(err, &connErr):
		result = "failed"
	case errors.Is(err, ErrEvicted):
		result = "evicted"
	case errors.Is(err, ErrCanceled):
		result = "canceled"
	default:
		result = "error"
	}
	exchangeResults.WithLabelValues(result).Inc()
}
