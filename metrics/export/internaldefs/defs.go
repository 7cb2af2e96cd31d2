package internaldefs

import (
	"strconv"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: goIdentity.MetricSessionCreated, Name: "goidentity_session_created_total", Help: "Sessions created."},
	{ID: goIdentity.MetricSessionRefreshed, Name: "goidentity_session_refreshed_total", Help: "Session tokens rotated."},
	{ID: goIdentity.MetricSessionSaveFailure, Name: "goidentity_session_save_failure_total", Help: "Session saves that failed."},
	{ID: goIdentity.MetricSessionResolved, Name: "goidentity_session_resolved_total", Help: "Presented credentials that resolved to a session."},
	{ID: goIdentity.MetricSessionRejected, Name: "goidentity_session_rejected_total", Help: "Presented credentials that did not resolve."},
	{ID: goIdentity.MetricLoginSuccess, Name: "goidentity_login_success_total", Help: "Successful password logins."},
	{ID: goIdentity.MetricLoginFailure, Name: "goidentity_login_failure_total", Help: "Failed password logins."},
	{ID: goIdentity.MetricLoginForbidden, Name: "goidentity_login_forbidden_total", Help: "Logins refused for deleted accounts."},
	{ID: goIdentity.MetricLoginRateLimited, Name: "goidentity_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: goIdentity.MetricLogout, Name: "goidentity_logout_total", Help: "Logouts."},
	{ID: goIdentity.MetricLoginAsSuccess, Name: "goidentity_login_as_success_total", Help: "Successful impersonations."},
	{ID: goIdentity.MetricLoginAsDenied, Name: "goidentity_login_as_denied_total", Help: "Impersonation attempts refused."},
	{ID: goIdentity.MetricLogoutAs, Name: "goidentity_logout_as_total", Help: "Impersonations ended."},
	{ID: goIdentity.MetricOAuth2Success, Name: "goidentity_oauth2_success_total", Help: "Successful OAuth2 logins or links."},
	{ID: goIdentity.MetricOAuth2Failure, Name: "goidentity_oauth2_failure_total", Help: "Failed OAuth2 logins."},
	{ID: goIdentity.MetricPasswordResetRequest, Name: "goidentity_password_reset_request_total", Help: "Password reset requests."},
	{ID: goIdentity.MetricPasswordResetConfirmSuccess, Name: "goidentity_password_reset_confirm_success_total", Help: "Successful password reset confirmations."},
	{ID: goIdentity.MetricPasswordResetConfirmFailure, Name: "goidentity_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: goIdentity.MetricPasswordResetRateLimited, Name: "goidentity_password_reset_rate_limited_total", Help: "Rate-limited password reset requests."},
	{ID: goIdentity.MetricPasswordUpgraded, Name: "goidentity_password_upgraded_total", Help: "Password hashes upgraded on login."},
	{ID: goIdentity.MetricStoreUnavailable, Name: "goidentity_store_unavailable_total", Help: "Store calls that failed outside validation."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goIdentity.MetricResolveLatency, Name: "goidentity_resolve_latency_seconds", Help: "Session resolution latency histogram."},
}

// HistogramBounds are the "le" labels of the latency buckets in seconds,
// ending with "+Inf".
var HistogramBounds = boundLabels()

// HistogramBoundSuffix is HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = boundSuffixes()

func boundLabels() []string {
	out := make([]string, 0, goIdentity.LatencyBucketCount)
	for _, bound := range goIdentity.ResolveLatencyBounds {
		out = append(out, strconv.FormatFloat(bound.Seconds(), 'g', -1, 64))
	}
	return append(out, "+Inf")
}

func boundSuffixes() []string {
	labels := boundLabels()
	out := make([]string, len(labels))
	for i, le := range labels {
		out[i] = strings.ReplaceAll(le, ".", "_")
	}
	out[len(out)-1] = "inf"
	return out
}

// Cumulative returns running totals of raw over exactly
// LatencyBucketCount buckets. Missing buckets count as zero and extra ones
// are ignored.
func Cumulative(raw []uint64) []uint64 {
	out := make([]uint64, goIdentity.LatencyBucketCount)
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
