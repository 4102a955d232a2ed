package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	intentsCreatedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "intents_created_total",
			Help:      "Payment intents requested, by provider and result.",
		},
		[]string{"provider", "result"}, // created, rejected, gateway_error
	)
	paymentsCreditedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "credited_total",
			Help:      "Balance credits applied, by provider.",
		},
		[]string{"provider"},
	)
	verificationOutcomeCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "verification_outcomes_total",
			Help:      "Verification and webhook outcomes, by provider.",
		},
		[]string{"provider", "outcome"},
	)
	cryptomusSignatureMismatchCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "cryptomus_signature_mismatch_total",
			Help:      "Cryptomus webhooks whose sign did not verify.",
		},
	)
)
