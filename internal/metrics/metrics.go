package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EndpointResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "endpoint_responses_total",
		Help: "The total number of endpoint responses",
	}, []string{"endpoint", "status_code"})

	EndpointDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "endpoint_duration_seconds",
		Help:    "Time spent serving a request",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// Planner Metrics
	PlansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_plans_total",
		Help: "Planning requests by the family that served them and their outcome",
	}, []string{"family", "outcome"})

	FamilyFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_family_fallbacks_total",
		Help: "Families skipped by auto selection because the device could not run them",
	}, []string{"family"})

	PlanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "planner_plan_duration_us",
		Help:    "Duration of one planning call in microseconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 16), // 1us to ~32ms
	})

	LastPlanWorkGroups = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "planner_last_plan_work_groups",
		Help: "Number of work-groups launched by the last successful plan",
	})

	ValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_validation_failures_total",
		Help: "Failed planning calls by error kind",
	}, []string{"kind"})

	// Device Metrics
	DeviceLaneWidth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "device_lane_width",
		Help: "Lane-group width of the device planned for",
	}, []string{"device"})

	DeviceStreamingMultiprocessors = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "device_streaming_multiprocessors",
		Help: "Streaming multiprocessor count of the device planned for, 0 when not reported",
	}, []string{"device"})
)
