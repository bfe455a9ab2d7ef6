package rest

import (
	"context"

	botconfig "github.com/AzielCF/az-messenger/botconfig/domain"
	pkgError "github.com/AzielCF/az-messenger/pkg/error"
	"github.com/AzielCF/az-messenger/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// Sessions is the admin view of the session directory.
type Sessions interface {
	Peek(ctx context.Context, botID, senderID string) (string, bool, error)
	Invalidate(ctx context.Context, botID, senderID string) error
}

// ClientEvictor drops cached per-bot page clients.
type ClientEvictor interface {
	Forget(botID string)
}

type BotConfig struct {
	Service  botconfig.IBotConfigUsecase
	Sessions Sessions
	Clients  ClientEvictor
}

type deployBody struct {
	Channels []botconfig.ChannelConnector `json:"channels"`
}

func InitRestBotConfig(app fiber.Router, service botconfig.IBotConfigUsecase, sessions Sessions, clients ClientEvictor) BotConfig {
	rest := BotConfig{Service: service, Sessions: sessions, Clients: clients}
	app.Get("/bots", rest.ListBots)
	app.Get("/bots/:botId", rest.GetBot)
	app.Put("/bots/:botId", rest.DeployBot)
	app.Delete("/bots/:botId", rest.DeleteBot)
	app.Get("/bots/:botId/sessions/:senderId", rest.GetSession)
	app.Delete("/bots/:botId/sessions/:senderId", rest.DeleteSession)
	return rest
}

func (h *BotConfig) ListBots(c *fiber.Ctx) error {
	bots, err := h.Service.List(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Bots fetched",
		Results: bots,
	})
}

func (h *BotConfig) GetBot(c *fiber.Ctx) error {
	bot, err := h.Service.Current(c.UserContext(), c.Params("botId"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Bot fetched",
		Results: bot,
	})
}

// DeployBot stores the body as the bot's next configuration version.
func (h *BotConfig) DeployBot(c *fiber.Ctx) error {
	var body deployBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(utils.ResponseData{
			Status:  400,
			Code:    "BAD_REQUEST",
			Message: err.Error(),
		})
	}

	bot, err := h.Service.Deploy(c.UserContext(), botconfig.DeployRequest{
		BotID:    c.Params("botId"),
		Channels: body.Channels,
	})
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Bot deployed",
		Results: bot,
	})
}

func (h *BotConfig) DeleteBot(c *fiber.Ctx) error {
	botID := c.Params("botId")
	utils.PanicIfNeeded(h.Service.Delete(c.UserContext(), botID))
	if h.Clients != nil {
		h.Clients.Forget(botID)
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Bot deleted",
	})
}

func (h *BotConfig) GetSession(c *fiber.Ctx) error {
	botID, senderID := c.Params("botId"), c.Params("senderId")
	conversationID, ok, err := h.Sessions.Peek(c.UserContext(), botID, senderID)
	utils.PanicIfNeeded(err)
	if !ok {
		panic(pkgError.NotFoundError("no session for sender " + senderID))
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Session fetched",
		Results: map[string]any{
			"bot_id":          botID,
			"sender_id":       senderID,
			"conversation_id": conversationID,
		},
	})
}

// DeleteSession forgets the sender's conversation; the next message starts a new one.
func (h *BotConfig) DeleteSession(c *fiber.Ctx) error {
	utils.PanicIfNeeded(h.Sessions.Invalidate(c.UserContext(), c.Params("botId"), c.Params("senderId")))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Session cleared",
	})
}
