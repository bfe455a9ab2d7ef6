package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AzielCF/az-messenger/core/database"
	"github.com/AzielCF/az-messenger/ui/rest"
	"github.com/AzielCF/az-messenger/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Serve the Messenger webhook and the admin API over http",
	Run:   restServer,
}

func init() {
	rootCmd.AddCommand(restCmd)
}

func restServer(_ *cobra.Command, _ []string) {
	initApp()

	fiberConfig := fiber.Config{
		EnableTrustedProxyCheck: true,
		Network:                 "tcp",
		AppName:                 "Az-Messenger Relay",
		ServerHeader:            "Hidden",
	}
	if len(cfg.App.TrustedProxies) > 0 {
		fiberConfig.TrustedProxies = cfg.App.TrustedProxies
		fiberConfig.ProxyHeader = fiber.HeaderXForwardedFor
	}

	app := fiber.New(fiberConfig)

	app.Use(requestid.New())
	app.Use(middleware.Recovery())
	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "no-referrer",
	}))
	if cfg.App.Debug {
		app.Use(logger.New())
	}

	// Webhook routes stay outside the authenticated, rate limited api group.
	rest.InitRestWebhook(app.Group(cfg.App.BasePath), clientCache, orchestrator, messagePool)

	apiGroup := app.Group(cfg.App.BasePath + "/api")
	apiGroup.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	apiGroup.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))

	if accounts := basicAuthAccounts(cfg.App.BasicAuth); len(accounts) > 0 {
		apiGroup.Use(basicauth.New(basicauth.Config{
			Users: accounts,
			Next: func(c *fiber.Ctx) bool {
				// Allow CORS preflight without credentials.
				return c.Method() == fiber.MethodOptions
			},
		}))
	} else {
		logrus.Warn("[REST] APP_BASIC_AUTH is not set, the admin api is public")
	}

	rest.InitRestBotConfig(apiGroup, botConfigUsecase, sessionDirectory, clientCache)
	rest.InitRestWorkerPool(apiGroup, messagePool)
	rest.InitRestBotMonitor(apiGroup, relayMonitor)

	var valkeyPing rest.Pinger
	if vkClient != nil {
		valkeyPing = vkClient
	}
	rest.InitRestHealth(apiGroup, serverID, rest.PingFunc(func(ctx context.Context) error {
		return database.Ping(ctx, db)
	}), valkeyPing)

	apiGroup.All("/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "API Endpoint not found",
			"path":  c.Path(),
		})
	})

	// Graceful shutdown handler
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.App.Port); err != nil {
		logrus.Fatalln("Failed to start: ", err.Error())
	}
	StopApp()
}

// basicAuthAccounts parses "user:secret" pairs. Malformed entries are fatal.
func basicAuthAccounts(credentials []string) map[string]string {
	accounts := make(map[string]string)
	for _, credential := range credentials {
		credential = strings.TrimSpace(credential)
		if credential == "" {
			continue
		}
		user, secret, ok := strings.Cut(credential, ":")
		if !ok || user == "" {
			logrus.Fatalln("Basic auth is not valid, please this following format <user>:<secret>")
		}
		accounts[user] = secret
	}
	return accounts
}
