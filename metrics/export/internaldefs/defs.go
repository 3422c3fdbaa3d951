package internaldefs

import (
	"strconv"

	"github.com/MrEthical07/warden"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   warden.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   warden.MetricID
	Name string
	Help string
}

// AuditDroppedName is exported alongside the engine counters.
const (
	AuditDroppedName = "warden_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

var CounterDefs = []CounterDef{
	{ID: warden.MetricLoginIssued, Name: "warden_login_issued_total", Help: "Token pairs issued for authenticated subjects."},
	{ID: warden.MetricLoginFailure, Name: "warden_login_failure_total", Help: "Failed token issuance for login."},
	{ID: warden.MetricRefreshRotated, Name: "warden_refresh_rotated_total", Help: "Refreshes that rotated a valid refresh session."},
	{ID: warden.MetricRefreshGraceReissued, Name: "warden_refresh_grace_reissued_total", Help: "Refreshes reissued from expired access claims inside the window."},
	{ID: warden.MetricRefreshFailure, Name: "warden_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: warden.MetricRefreshTooEarly, Name: "warden_refresh_too_early_total", Help: "Refreshes rejected because the access token was still valid."},
	{ID: warden.MetricRefreshWindowExceeded, Name: "warden_refresh_window_exceeded_total", Help: "Refreshes rejected because the access token expired outside the window."},
	{ID: warden.MetricRefreshSessionNotFound, Name: "warden_refresh_session_not_found_total", Help: "Refreshes whose session was revoked or already rotated."},
	{ID: warden.MetricRefreshRevokedAccess, Name: "warden_refresh_revoked_access_total", Help: "Grace refreshes blocked by the access blacklist."},
	{ID: warden.MetricLogout, Name: "warden_logout_total", Help: "Logout operations."},
	{ID: warden.MetricLogoutFailure, Name: "warden_logout_failure_total", Help: "Logout operations that failed on the store."},
	{ID: warden.MetricAccessRevoked, Name: "warden_access_revoked_total", Help: "Access tokens added to the blacklist."},
	{ID: warden.MetricBotTokenIssued, Name: "warden_bot_token_issued_total", Help: "Bot access tokens issued."},
	{ID: warden.MetricBotSessionsReplaced, Name: "warden_bot_sessions_replaced_total", Help: "Prior bot sessions invalidated by a new bot token."},
	{ID: warden.MetricValidateSuccess, Name: "warden_validate_success_total", Help: "Access tokens accepted."},
	{ID: warden.MetricValidateFailure, Name: "warden_validate_failure_total", Help: "Access tokens rejected."},
	{ID: warden.MetricRateLimitAllowed, Name: "warden_rate_limit_allowed_total", Help: "Rate checks that admitted the request."},
	{ID: warden.MetricRateLimitHit, Name: "warden_rate_limit_hit_total", Help: "Rate checks that denied the request."},
	{ID: warden.MetricRateLimitFailOpen, Name: "warden_rate_limit_fail_open_total", Help: "Rate checks admitted while the store was unavailable."},
	{ID: warden.MetricStoreUnavailable, Name: "warden_store_unavailable_total", Help: "Operations that failed because Redis was unavailable."},
	{ID: warden.MetricEmailConfirmationIssued, Name: "warden_email_confirmation_issued_total", Help: "Email confirmation tokens issued."},
	{ID: warden.MetricEmailConfirmed, Name: "warden_email_confirmed_total", Help: "Email confirmation tokens redeemed."},
	{ID: warden.MetricEmailConfirmFailure, Name: "warden_email_confirm_failure_total", Help: "Rejected or failed email confirmations."},
	{ID: warden.MetricResetCodeIssued, Name: "warden_reset_code_issued_total", Help: "Password reset codes issued."},
	{ID: warden.MetricResetCodeVerified, Name: "warden_reset_code_verified_total", Help: "Password reset codes accepted."},
	{ID: warden.MetricResetCodeFailure, Name: "warden_reset_code_failure_total", Help: "Rejected or failed password reset codes."},
	{ID: warden.MetricNotifyFailure, Name: "warden_notify_failure_total", Help: "Notification events that could not be published."},
}

var HistogramDefs = []HistogramDef{
	{ID: warden.MetricValidateLatency, Name: "warden_validate_latency_seconds", Help: "ValidateAccess latency."},
	{ID: warden.MetricRefreshLatency, Name: "warden_refresh_latency_seconds", Help: "Refresh latency."},
	{ID: warden.MetricRateCheckLatency, Name: "warden_rate_check_latency_seconds", Help: "CheckRate latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds; the eighth
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// BucketLabels returns the "le" label of each bucket, ending with "+Inf".
func BucketLabels() []string {
	out := make([]string, 0, len(HistogramUpperBounds)+1)
	for _, b := range HistogramUpperBounds {
		out = append(out, strconv.FormatFloat(b, 'g', -1, 64))
	}
	return append(out, "+Inf")
}

// NormalizeBuckets copies raw into a fixed array, zero filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
