package internaldefs

import (
	goOTP "github.com/MrEthical07/goOTP"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   goOTP.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   goOTP.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goOTP.MetricOTPIssued, Name: "gootp_otp_issued_total", Help: "Codes persisted and handed to the notifier."},
	{ID: goOTP.MetricOTPIssueThrottled, Name: "gootp_otp_issue_throttled_total", Help: "Issuance requests rejected by the generation throttle."},
	{ID: goOTP.MetricOTPSuperseded, Name: "gootp_otp_superseded_total", Help: "Issuances that invalidated an earlier active code."},
	{ID: goOTP.MetricOTPDeliveryFailed, Name: "gootp_otp_delivery_failed_total", Help: "Codes persisted but not delivered."},
	{ID: goOTP.MetricOTPVerified, Name: "gootp_otp_verified_total", Help: "Codes consumed successfully."},
	{ID: goOTP.MetricOTPExpired, Name: "gootp_otp_expired_total", Help: "Submissions matching an expired or superseded code."},
	{ID: goOTP.MetricOTPInvalid, Name: "gootp_otp_invalid_total", Help: "Submissions matching no unconsumed code."},
	{ID: goOTP.MetricOTPRateLimited, Name: "gootp_otp_rate_limited_total", Help: "Submissions rejected by the verification failure budget."},
	{ID: goOTP.MetricOTPResend, Name: "gootp_otp_resend_total", Help: "Codes reissued for a pending session."},
	{ID: goOTP.MetricSecondFactorRollback, Name: "gootp_second_factor_rollback_total", Help: "Logouts after a failed second-factor start."},
	{ID: goOTP.MetricSweepRun, Name: "gootp_sweep_run_total", Help: "Completed expired-record sweeps."},
	{ID: goOTP.MetricSweepFailed, Name: "gootp_sweep_failed_total", Help: "Failed expired-record sweeps."},
	{ID: goOTP.MetricSweepDeleted, Name: "gootp_sweep_deleted_total", Help: "Records removed by sweeps."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goOTP.MetricValidateLatency, Name: "gootp_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix spells HistogramBounds in instrument-name-safe form.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
