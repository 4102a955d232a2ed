package httpclient

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	outboundRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "otp_market",
			Name:      "outbound_request_duration_seconds",
			Help:      "Duration of HTTP requests made to upstream providers and gateways.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		},
		[]string{"provider", "code", "method"},
	)
	outboundRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "otp_market",
			Name:      "outbound_requests_in_flight",
			Help:      "Upstream HTTP requests currently in flight.",
		},
		[]string{"provider"},
	)
)

// New returns an *http.Client with the given timeout whose transport records
// request duration and in-flight count labelled by provider.
func New(provider string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: Instrument(provider, http.DefaultTransport),
	}
}

func Instrument(provider string, next http.RoundTripper) http.RoundTripper {
	labels := prometheus.Labels{"provider": provider}
	return promhttp.InstrumentRoundTripperInFlight(
		outboundRequestsInFlight.With(labels),
		promhttp.InstrumentRoundTripperDuration(
			outboundRequestDuration.MustCurryWith(labels),
			next,
		),
	)
}
