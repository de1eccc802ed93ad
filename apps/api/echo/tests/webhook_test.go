package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/pan-thu/lets-talk-sub000/core/enrollment"
	"github.com/pan-thu/lets-talk-sub000/services/payment/stripe"
	"github.com/pan-thu/lets-talk-sub000/tests"
)

const webhookPath = "/v1/webhooks/stripe"

func paymentIntentEvent(t *testing.T, typ, ref string, amountCents int64) []byte {
	t.Helper()
	metadata := map[string]string{}
	if ref != "" {
		metadata[stripesvc.ReferenceMetadataKey] = ref
	}
	payload, err := json.Marshal(map[string]interface{}{
		"id":      "evt_" + typ,
		"object":  "event",
		"type":    typ,
		"created": 1709546400,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id": "pi_1", "object": "payment_intent", "metadata": metadata,
				"amount": amountCents, "currency": "usd",
			},
		},
	})
	require.NoError(t, err)
	return payload
}

func (e *env) deliver(payload []byte, secret string) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(http.MethodPost, webhookPath, "", payload)
	req.Header.Set("Stripe-Signature", webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	}).Header)
	e.app.ServeHTTP(rec, req)
	return rec
}

func Test_webhookApi_stripe(t *testing.T) {
	e := newEnv(t)
	crs := testutil.CreateCourse(t, e.courseRepo, e.teacher.ID, 4999, true)
	rec := e.do(http.MethodPost, "/v1/courses/"+crs.ID+"/payment-proof", getToken(t, e.student),
		marchallObj(t, map[string]string{"proof_image_url": proofURL}))
	require.Equal(t, http.StatusCreated, rec.Code)
	var submitted enrollment.SubmitProofResult
	decode(t, rec, &submitted)
	ref := submitted.PaymentReferenceID
	ack := []byte(`{"received": true}`)

	tests := []httpTest{
		{name: "unsigned", body: paymentIntentEvent(t, "payment_intent.succeeded", ref, 4999), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: stripesvc.ErrInvalidSignature.Error()})},
		{name: "irrelevant event", body: paymentIntentEvent(t, "payment_intent.created", ref, 4999), wantCode: http.StatusOK, wantData: ack},
		{name: "no reference", body: paymentIntentEvent(t, "payment_intent.succeeded", "", 4999), wantCode: http.StatusOK, wantData: ack},
		{name: "unknown reference", body: paymentIntentEvent(t, "payment_intent.succeeded", "NOPE-0000-000000", 4999), wantCode: http.StatusOK, wantData: ack},
		{name: "underpaid", body: paymentIntentEvent(t, "payment_intent.succeeded", ref, 100), wantCode: http.StatusOK, wantData: ack},
		{name: "succeeded", body: paymentIntentEvent(t, "payment_intent.succeeded", ref, 4999), wantCode: http.StatusOK, wantData: ack},
		{name: "redelivered", body: paymentIntentEvent(t, "payment_intent.succeeded", ref, 4999), wantCode: http.StatusOK, wantData: ack},
		{name: "late failure", body: paymentIntentEvent(t, "payment_intent.payment_failed", ref, 4999), wantCode: http.StatusOK, wantData: ack},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.name == "succeeded" {
				// the underpaid delivery left the payment awaiting confirmation
				pmt, err := e.enrRepo.GetPaymentByReference(ctx, ref)
				require.NoError(t, err)
				require.Equal(t, enrollment.PaymentProofSubmitted, pmt.Status)
			}
			secret := conf.Stripe.WebhookSecret
			if tt.name == "unsigned" {
				secret = "whsec_wrong"
			}
			rec := e.deliver(tt.body, secret)
			checkCodeAndData(t, tt, rec)
		})
	}

	pmt, err := e.enrRepo.GetPaymentByReference(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, enrollment.PaymentCompleted, pmt.Status)

	enr, err := e.enrRepo.GetEnrollment(ctx, pmt.EnrollmentID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusActive, enr.Status)
	assert.Len(t, e.mailSvc.SentMessages(), 1)
}

func Test_webhookApi_stripe_noSecret(t *testing.T) {
	noSecret := *conf
	noSecret.Stripe.WebhookSecret = ""
	e := newEnvWithConfig(t, &noSecret)
	crs := testutil.CreateCourse(t, e.courseRepo, e.teacher.ID, 4999, true)
	rec := e.do(http.MethodPost, "/v1/courses/"+crs.ID+"/payment-proof", getToken(t, e.student),
		marchallObj(t, map[string]string{"proof_image_url": proofURL}))
	require.Equal(t, http.StatusCreated, rec.Code)
	var submitted enrollment.SubmitProofResult
	decode(t, rec, &submitted)

	// anyone can sign with an empty secret
	rec = e.deliver(paymentIntentEvent(t, "payment_intent.succeeded", submitted.PaymentReferenceID, 4999), "")
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusServiceUnavailable,
		wantData: marchallObj(t, httpErr{Error: "webhook not configured"}),
	}, rec)

	pmt, err := e.enrRepo.GetPaymentByReference(ctx, submitted.PaymentReferenceID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.PaymentProofSubmitted, pmt.Status)
	enr, err := e.enrRepo.GetEnrollment(ctx, pmt.EnrollmentID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusPendingPayment, enr.Status)
	assert.False(t, enr.Paid)
}

func Test_webhookApi_stripe_tooLarge(t *testing.T) {
	e := newEnv(t)
	payload := append([]byte(`{"padding":"`), bytes.Repeat([]byte("x"), 70000)...)
	payload = append(payload, []byte(`"}`)...)

	rec := e.deliver(payload, conf.Stripe.WebhookSecret)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
