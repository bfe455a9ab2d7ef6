package rest

import (
	"context"

	"github.com/AzielCF/az-messenger/messenger/domain"
	"github.com/AzielCF/az-messenger/messenger/infrastructure/platform"
	"github.com/AzielCF/az-messenger/pkg/msgworker"
	"github.com/AzielCF/az-messenger/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// WebhookVerifiers returns the verifier of a bot's page.
type WebhookVerifiers interface {
	Verifier(ctx context.Context, botID string) (domain.IWebhookVerifier, error)
}

// Relayer processes one inbound event.
type Relayer interface {
	Relay(ctx context.Context, botID string, event domain.InboundEvent) error
}

// Dispatcher schedules jobs off the request path, all of a batch or none.
type Dispatcher interface {
	TryDispatchBatch(jobs []msgworker.MessageJob) bool
}

type Webhook struct {
	Verifiers WebhookVerifiers
	Relay     Relayer
	Pool      Dispatcher
}

func InitRestWebhook(app fiber.Router, verifiers WebhookVerifiers, relay Relayer, pool Dispatcher) Webhook {
	rest := Webhook{Verifiers: verifiers, Relay: relay, Pool: pool}
	app.Get("/webhook/:botId", rest.VerifySubscription)
	app.Post("/webhook/:botId", rest.ReceiveEvents)
	return rest
}

// VerifySubscription answers the platform's subscription handshake by
// echoing hub.challenge when hub.verify_token matches.
func (h *Webhook) VerifySubscription(c *fiber.Ctx) error {
	botID := c.Params("botId")
	verifier, err := h.Verifiers.Verifier(c.UserContext(), botID)
	if err != nil {
		logrus.WithError(err).WithField("bot_id", botID).Error("[WEBHOOK] Verification setup failed")
		return c.Status(fiber.StatusInternalServerError).JSON(utils.ResponseData{
			Status:  fiber.StatusInternalServerError,
			Code:    "CONFIGURATION_ERROR",
			Message: err.Error(),
		})
	}

	if err := verifier.VerifyToken(c.Query("hub.mode"), c.Query("hub.verify_token")); err != nil {
		logrus.WithError(err).WithField("bot_id", botID).Warn("[WEBHOOK] Subscription rejected")
		return c.SendStatus(fiber.StatusForbidden)
	}

	logrus.WithField("bot_id", botID).Info("[WEBHOOK] Subscription verified")
	return c.Status(fiber.StatusOK).SendString(c.Query("hub.challenge"))
}

// ReceiveEvents verifies the batch signature and queues one relay job per
// event. The platform is acknowledged before any event is processed. A batch
// that does not fit is refused whole, so redelivery does not repeat events.
func (h *Webhook) ReceiveEvents(c *fiber.Ctx) error {
	botID := c.Params("botId")
	log := logrus.WithField("bot_id", botID)
	body := append([]byte(nil), c.Body()...)

	verifier, err := h.Verifiers.Verifier(c.UserContext(), botID)
	if err != nil {
		log.WithError(err).Error("[WEBHOOK] Could not load page credentials")
		return c.Status(fiber.StatusInternalServerError).JSON(utils.ResponseData{
			Status:  fiber.StatusInternalServerError,
			Code:    "CONFIGURATION_ERROR",
			Message: err.Error(),
		})
	}

	if err := verifier.VerifySignature(body, c.Get(platform.HeaderSignature256), c.Get(platform.HeaderSignature)); err != nil {
		log.WithError(err).Error("[WEBHOOK] Error when processing callback payload")
		return c.Status(fiber.StatusInternalServerError).JSON(utils.ResponseData{
			Status:  fiber.StatusInternalServerError,
			Code:    "VERIFICATION_ERROR",
			Message: "error when processing callback payload",
		})
	}

	events, err := platform.ParseEvents(body)
	if err != nil {
		log.WithError(err).Warn("[WEBHOOK] Unreadable callback payload")
		return c.Status(fiber.StatusBadRequest).JSON(utils.ResponseData{
			Status:  fiber.StatusBadRequest,
			Code:    "BAD_REQUEST",
			Message: err.Error(),
		})
	}

	jobs := make([]msgworker.MessageJob, 0, len(events))
	for _, event := range events {
		jobs = append(jobs, msgworker.MessageJob{
			BotID:    botID,
			SenderID: event.SenderID,
			Handler: func(ctx context.Context) error {
				return h.Relay.Relay(ctx, botID, event)
			},
		})
	}
	if !h.Pool.TryDispatchBatch(jobs) {
		log.WithField("events", len(events)).Warn("[WEBHOOK] Queue full, refusing callback")
		return c.Status(fiber.StatusTooManyRequests).JSON(utils.ResponseData{
			Status:  fiber.StatusTooManyRequests,
			Code:    "QUEUE_FULL",
			Message: "webhook queue is full",
		})
	}

	log.WithField("events", len(events)).Debug("[WEBHOOK] Callback accepted")
	return c.SendStatus(fiber.StatusOK)
}
