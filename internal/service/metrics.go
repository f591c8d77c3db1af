package service

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/tempuro/auth-service/pkg/errors"
)

var (
	authFlowTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_flow_total",
			Help: "Total number of auth flows by outcome",
		},
		[]string{"flow", "outcome"},
	)

	authFlowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auth_flow_duration_seconds",
			Help:    "Duration of auth flows in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"flow"},
	)
)

// outcome labels a finished flow: "success", the AppError code, or "error".
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "error"
}

func observeFlow(flow string, start time.Time, err error) {
	authFlowTotal.WithLabelValues(flow, outcome(err)).Inc()
	authFlowDuration.WithLabelValues(flow).Observe(time.Since(start).Seconds())
}
