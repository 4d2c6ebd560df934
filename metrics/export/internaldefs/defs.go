package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one goSession counter for exporters.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one goSession latency histogram for exporters.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricRequestSuccess, Name: "gosession_request_success_total", Help: "Logical requests that resolved with a 2xx."},
	{ID: goSession.MetricRequestFailure, Name: "gosession_request_failure_total", Help: "Logical requests that returned an error."},
	{ID: goSession.MetricUnauthorized, Name: "gosession_unauthorized_total", Help: "401 responses observed on any attempt."},
	{ID: goSession.MetricAuthRejected, Name: "gosession_auth_rejected_total", Help: "401 responses from auth endpoints passed through without refresh."},
	{ID: goSession.MetricRefreshStarted, Name: "gosession_refresh_started_total", Help: "Session refresh calls issued."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Refresh calls that renewed the session."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Refresh calls that failed."},
	{ID: goSession.MetricRefreshQueued, Name: "gosession_refresh_queued_total", Help: "Requests that waited on an in-flight refresh."},
	{ID: goSession.MetricRefreshAdopted, Name: "gosession_refresh_adopted_total", Help: "Expired-session responses settled by an already completed refresh."},
	{ID: goSession.MetricReplaySuccess, Name: "gosession_replay_success_total", Help: "Replayed requests that succeeded."},
	{ID: goSession.MetricReplayFailure, Name: "gosession_replay_failure_total", Help: "Replayed requests that failed."},
	{ID: goSession.MetricSessionExpired, Name: "gosession_session_expired_total", Help: "Sessions lost for good."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Explicit logouts."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricRequestLatency, Name: "gosession_request_latency_seconds", Help: "Per-attempt request latency."},
	{ID: goSession.MetricRefreshLatency, Name: "gosession_refresh_latency_seconds", Help: "Session refresh call latency."},
}

// EventsDroppedName is the counter for events lost to dispatcher backpressure.
const (
	EventsDroppedName = "gosession_events_dropped_total"
	EventsDroppedHelp = "Dropped session events due to dispatcher backpressure."
)

// Gauges describing the refresh coordinator at collection time.
const (
	RefreshInFlightName = "gosession_refresh_in_flight"
	RefreshInFlightHelp = "1 while a session refresh call is outstanding."
	RefreshWaitingName  = "gosession_refresh_waiting"
	RefreshWaitingHelp  = "Requests parked behind the outstanding refresh."
)

type coordinatorSource interface {
	Coordinator() *goSession.SessionCoordinator
}

// SessionState reads the coordinator gauges of source. ok is false when the
// source does not expose a coordinator.
func SessionState(source any) (inFlight, waiting int64, ok bool) {
	cs, isSource := source.(coordinatorSource)
	if !isSource {
		return 0, 0, false
	}
	coord := cs.Coordinator()
	if coord == nil {
		return 0, 0, false
	}
	if coord.Refreshing() {
		inFlight = 1
	}
	return inFlight, int64(coord.Waiting()), true
}

// HistogramUpperBounds are the finite bucket bounds in seconds; the eighth
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundLabels are the le label values of the eight buckets.
var HistogramBoundLabels = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// NormalizeBuckets pads or truncates raw to the eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
