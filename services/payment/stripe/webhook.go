package stripesvc

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/pan-thu/lets-talk-sub000/core"
	"github.com/pan-thu/lets-talk-sub000/core/enrollment"
)

// ReferenceMetadataKey is the checkout/payment intent metadata key carrying the payment reference.
const ReferenceMetadataKey = "payment_reference_id"

var (
	// errors
	ErrInvalidSignature = core.NewBadRequestError("invalid webhook signature")
	ErrMissingReference = core.NewBadRequestError("payment reference missing from event metadata")
	ErrNotConfigured    = errors.New("stripe webhook secret not configured")
)

// WebhookParser verifies Stripe webhook deliveries and turns the payment related ones into outcomes.
type WebhookParser struct {
	secret string
}

func NewWebhookParser(conf *core.Config) *WebhookParser {
	return &WebhookParser{secret: conf.Stripe.WebhookSecret}
}

// Enabled reports whether a webhook signing secret is configured.
func (p *WebhookParser) Enabled() bool {
	return p.secret != ""
}

// Parse verifies payload against the Stripe-Signature header. ok is false for events that carry no
// payment outcome. Without a signing secret every delivery fails with ErrNotConfigured.
func (p *WebhookParser) Parse(payload []byte, signature string) (wo enrollment.WebhookOutcome, ok bool, err error) {
	if !p.Enabled() {
		return wo, false, ErrNotConfigured
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return wo, false, ErrInvalidSignature
	}

	wo = enrollment.WebhookOutcome{
		Provider:   enrollment.ProviderStripe,
		EventID:    evt.ID,
		OccurredAt: time.Unix(evt.Created, 0).UTC(),
	}

	switch evt.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed", "checkout.session.expired":
		var cs stripe.CheckoutSession
		if err = json.Unmarshal(evt.Data.Raw, &cs); err != nil {
			return wo, false, errors.Wrap(err, "decoding checkout session")
		}
		switch evt.Type {
		case "checkout.session.completed":
			if cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
				// settled later through an async_payment_* event
				return wo, false, nil
			}
			wo.Outcome = enrollment.OutcomeSucceeded
		case "checkout.session.async_payment_succeeded":
			wo.Outcome = enrollment.OutcomeSucceeded
		case "checkout.session.async_payment_failed":
			wo.Outcome, wo.Reason = enrollment.OutcomeFailed, "asynchronous payment failed"
		default:
			wo.Outcome, wo.Reason = enrollment.OutcomeCancelled, "checkout session expired"
		}
		wo.AmountCents, wo.Currency = cs.AmountTotal, string(cs.Currency)
		wo.ReferenceID = cs.Metadata[ReferenceMetadataKey]
		if wo.ReferenceID == "" {
			wo.ReferenceID = cs.ClientReferenceID
		}

	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err = json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return wo, false, errors.Wrap(err, "decoding payment intent")
		}
		switch evt.Type {
		case "payment_intent.succeeded":
			wo.Outcome = enrollment.OutcomeSucceeded
		case "payment_intent.payment_failed":
			wo.Outcome = enrollment.OutcomeFailed
			if pi.LastPaymentError != nil {
				wo.Reason = pi.LastPaymentError.Msg
			}
		default:
			wo.Outcome, wo.Reason = enrollment.OutcomeCancelled, string(pi.CancellationReason)
		}
		wo.AmountCents, wo.Currency = pi.Amount, string(pi.Currency)
		wo.ReferenceID = pi.Metadata[ReferenceMetadataKey]

	default:
		return wo, false, nil
	}

	if wo.ReferenceID == "" {
		return wo, false, ErrMissingReference
	}
	return wo, true, nil
}
