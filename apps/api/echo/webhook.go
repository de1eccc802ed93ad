package echoapi

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pan-thu/lets-talk-sub000/core"
	"github.com/pan-thu/lets-talk-sub000/core/enrollment"
	"github.com/pan-thu/lets-talk-sub000/services/payment/stripe"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBodyBytes   = 65536
)

var (
	errWebhookDisabled = echo.NewHTTPError(http.StatusServiceUnavailable, "webhook not configured")
	errWebhookTooLarge = echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		fmt.Sprintf("webhook payload exceeds %d bytes", maxWebhookBodyBytes))
)

// WebhookParser verifies a provider delivery and extracts its payment outcome, if any.
type WebhookParser interface {
	Enabled() bool
	Parse(payload []byte, signature string) (wo enrollment.WebhookOutcome, ok bool, err error)
}

type webhookApi struct {
	svc    EnrollmentService
	parser WebhookParser
	logger core.Logger
}

func registerWebhookAPI(g *echo.Group, svc EnrollmentService, parser WebhookParser, logger core.Logger) {
	api := webhookApi{svc: svc, parser: parser, logger: logger}
	g.POST("/webhooks/stripe", api.stripe)
}

type webhookAck struct {
	Received bool `json:"received"`
}

func (api *webhookApi) stripe(ctx echo.Context) error {
	if !api.parser.Enabled() {
		api.logger.Warn("stripe webhook delivery refused: no signing secret configured")
		return errWebhookDisabled
	}
	payload, err := readWebhookBody(ctx)
	if err != nil {
		return err
	}

	wo, ok, err := api.parser.Parse(payload, ctx.Request().Header.Get(stripeSignatureHeader))
	if errors.Cause(err) == stripesvc.ErrMissingReference {
		api.logger.Warn("webhook event without payment reference", map[string]interface{}{"event_id": wo.EventID})
		return ctx.JSON(http.StatusOK, webhookAck{Received: true})
	}
	if errors.Cause(err) == stripesvc.ErrNotConfigured {
		return errWebhookDisabled
	}
	if err != nil {
		return errors.Wrap(err, "parsing webhook")
	}
	if !ok {
		return ctx.JSON(http.StatusOK, webhookAck{Received: true})
	}

	fields := map[string]interface{}{
		"provider":     wo.Provider,
		"event_id":     wo.EventID,
		"reference_id": wo.ReferenceID,
		"outcome":      string(wo.Outcome),
	}
	if _, err = api.svc.ApplyWebhookOutcome(ctx.Request().Context(), wo); err != nil {
		switch core.KindOf(err) {
		case core.KindNotFound, core.KindConflict:
			// redelivering will not change the outcome; acknowledge
			api.logger.Warn("webhook outcome not applied: "+err.Error(), fields)
			return ctx.JSON(http.StatusOK, webhookAck{Received: true})
		}
		return errors.Wrap(err, "applying webhook outcome")
	}
	api.logger.Info("webhook outcome applied", fields)
	return ctx.JSON(http.StatusOK, webhookAck{Received: true})
}

// readWebhookBody reads the whole request body, refusing anything over maxWebhookBodyBytes.
func readWebhookBody(ctx echo.Context) ([]byte, error) {
	req := ctx.Request()
	body := http.MaxBytesReader(ctx.Response(), req.Body, maxWebhookBodyBytes)
	defer func() { _ = body.Close() }()

	payload, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errWebhookTooLarge
		}
		return nil, errors.Wrap(err, "reading webhook payload")
	}
	return payload, nil
}
