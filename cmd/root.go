package cmd

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/AzielCF/az-messenger/botconfig/application"
	botdomain "github.com/AzielCF/az-messenger/botconfig/domain"
	botrepo "github.com/AzielCF/az-messenger/botconfig/repository"
	coreconfig "github.com/AzielCF/az-messenger/core/config"
	"github.com/AzielCF/az-messenger/core/database"
	"github.com/AzielCF/az-messenger/infrastructure/valkey"
	"github.com/AzielCF/az-messenger/messenger/credentials"
	"github.com/AzielCF/az-messenger/messenger/domain"
	"github.com/AzielCF/az-messenger/messenger/infrastructure/backend"
	"github.com/AzielCF/az-messenger/messenger/infrastructure/platform"
	"github.com/AzielCF/az-messenger/messenger/relay"
	"github.com/AzielCF/az-messenger/messenger/repository"
	"github.com/AzielCF/az-messenger/messenger/session"
	"github.com/AzielCF/az-messenger/pkg/botmonitor"
	"github.com/AzielCF/az-messenger/pkg/crypto"
	"github.com/AzielCF/az-messenger/pkg/msgworker"
	"github.com/AzielCF/az-messenger/pkg/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

var (
	cfg *coreconfig.Config

	// Storage
	db            *gorm.DB
	vkClient      *valkey.Client
	botConfigRepo botdomain.IBotConfigRepository

	// Usecase
	botConfigUsecase botdomain.IBotConfigUsecase

	// Relay
	serverID         string
	clientCache      *platform.ClientCache
	sessionDirectory *session.Directory
	orchestrator     *relay.Orchestrator
	messagePool      *msgworker.MessageWorkerPool
	relayMonitor     *botmonitor.Monitor
	secretCipher     *crypto.Cipher

	appCtx    context.Context
	appCancel context.CancelFunc
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "az-messenger",
	Short: "Messenger webhook relay for a conversational bot backend",
	Long: `Receives Messenger webhooks for deployed bots, relays each user message
to the bot backend conversation of that user and sends the replies back.`,
}

func init() {
	// Load environment variables first
	utils.LoadConfig(".")

	time.Local = time.UTC

	var err error
	cfg, err = coreconfig.LoadConfig()
	if err != nil {
		logrus.Fatalf("[CONFIG] %v", err)
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	initFlags()
	cobra.OnInitialize(initEnvConfig)
}

// initEnvConfig applies .env and environment values read by viper to every
// setting whose flag was not given explicitly.
func initEnvConfig() {
	flags := rootCmd.PersistentFlags()
	fromEnv := func(flag, key string) bool {
		return !flags.Changed(flag) && viper.IsSet(key) && viper.GetString(key) != ""
	}

	if fromEnv("port", "app_port") {
		cfg.App.Port = viper.GetString("app_port")
	}
	if fromEnv("debug", "app_debug") {
		cfg.App.Debug = viper.GetBool("app_debug")
	}
	if fromEnv("basic-auth", "app_basic_auth") {
		cfg.App.BasicAuth = strings.Split(viper.GetString("app_basic_auth"), ",")
	}
	if fromEnv("base-path", "app_base_path") {
		cfg.App.BasePath = viper.GetString("app_base_path")
	}
	if fromEnv("trusted-proxies", "app_trusted_proxies") {
		cfg.App.TrustedProxies = strings.Split(viper.GetString("app_trusted_proxies"), ",")
	}
	if fromEnv("backend-uri", "backend_api_server_uri") {
		cfg.Backend.APIServerURI = strings.TrimRight(viper.GetString("backend_api_server_uri"), "/")
	}
	if fromEnv("backend-environment", "backend_environment") {
		cfg.Backend.Environment = viper.GetString("backend_environment")
	}
	if fromEnv("valkey", "valkey_enabled") {
		cfg.Database.ValkeyEnabled = viper.GetBool("valkey_enabled")
	}
	if fromEnv("message-workers", "message_worker_pool_size") {
		cfg.WorkerPool.Size = viper.GetInt("message_worker_pool_size")
	}
	if fromEnv("message-queue-size", "message_worker_queue_size") {
		cfg.WorkerPool.QueueSize = viper.GetInt("message_worker_queue_size")
	}

	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func initFlags() {
	flags := rootCmd.PersistentFlags()

	flags.StringVarP(&cfg.App.Port, "port", "p", cfg.App.Port,
		"change port number with --port <number> | example: --port=8080")
	flags.BoolVarP(&cfg.App.Debug, "debug", "d", cfg.App.Debug,
		"hide or displaying log with --debug <true/false> | example: --debug=true")
	flags.StringSliceVarP(&cfg.App.BasicAuth, "basic-auth", "b", cfg.App.BasicAuth,
		"basic auth credential for the admin api | -b=yourUsername:yourPassword")
	flags.StringVar(&cfg.App.BasePath, "base-path", cfg.App.BasePath,
		`base path for subpath deployment --base-path <string> | example: --base-path="/messenger"`)
	flags.StringSliceVar(&cfg.App.TrustedProxies, "trusted-proxies", cfg.App.TrustedProxies,
		`trusted proxy IP ranges --trusted-proxies <string> | example: --trusted-proxies="10.0.0.0/8"`)

	flags.StringVar(&cfg.Database.Driver, "db-driver", cfg.Database.Driver,
		`bot configuration database driver --db-driver <sqlite|postgres>`)
	flags.StringVar(&cfg.Database.Name, "db-name", cfg.Database.Name,
		`sqlite file or postgres database name --db-name <string> | example: --db-name="storages/messenger.db"`)
	flags.BoolVar(&cfg.Database.ValkeyEnabled, "valkey", cfg.Database.ValkeyEnabled,
		`keep sessions and credentials in valkey --valkey <true/false>`)

	flags.StringVar(&cfg.Backend.APIServerURI, "backend-uri", cfg.Backend.APIServerURI,
		`bot backend base uri --backend-uri <string> | example: --backend-uri="http://eddi:7070"`)
	flags.StringVar(&cfg.Backend.Environment, "backend-environment", cfg.Backend.Environment,
		`bot deployment environment --backend-environment <string> | example: --backend-environment=unrestricted`)

	flags.IntVar(&cfg.WorkerPool.Size, "message-workers", cfg.WorkerPool.Size,
		`number of concurrent message workers --message-workers <number> | example: --message-workers=30 (default: 20)`)
	flags.IntVar(&cfg.WorkerPool.QueueSize, "message-queue-size", cfg.WorkerPool.QueueSize,
		`queue size per message worker --message-queue-size <number> | example: --message-queue-size=1500 (default: 1000)`)
}

// initStorage opens the bot configuration store. Commands that only manage
// bots need nothing else.
func initStorage(ctx context.Context) {
	if db != nil {
		return
	}

	var err error
	db, err = database.NewDatabase(cfg.Database, cfg.App.Debug)
	if err != nil {
		logrus.Fatalf("[DB] %v", err)
	}

	repo := botrepo.NewBotConfigGormRepository(db)
	if cfg.App.EncryptionKey != "" {
		secretCipher, err = crypto.NewCipher(cfg.App.EncryptionKey)
		if err != nil {
			logrus.Fatalf("[DB] %v", err)
		}
		repo.WithCipher(secretCipher)
	} else {
		logrus.Warn("[DB] APP_ENCRYPTION_KEY not set, connector secrets are stored in plain text")
	}
	if err := repo.Init(ctx); err != nil {
		logrus.Fatalf("[DB] failed to init bot configuration store: %v", err)
	}
	botConfigRepo = repo
	botConfigUsecase = application.NewBotConfigService(repo, cfg.Messenger.ConnectorType)
}

// initApp wires the relay: caches, backend and platform clients, the
// session directory, the orchestrator and the worker pool.
func initApp() {
	appCtx, appCancel = context.WithCancel(context.Background())
	initStorage(appCtx)

	serverID = utils.GetPersistentServerID(cfg.App.ServerID, cfg.Paths.Storages)

	var (
		credentialCache domain.ICredentialCache
		sessionStore    domain.ISessionStore
	)
	if cfg.Database.ValkeyEnabled {
		client, err := valkey.NewClient(valkey.ConfigFrom(cfg.Database))
		if err != nil {
			logrus.WithError(err).Warn("[VALKEY] Unavailable, keeping sessions in memory")
		} else {
			vkClient = client
			credentialCache = repository.NewValkeyCredentialCache(client, cfg.Cache.CredentialTTL).WithCipher(secretCipher)
			sessionStore = repository.NewValkeySessionStore(client, cfg.Cache.SessionTTL)
			logrus.Infof("[VALKEY] Sessions shared through %s", cfg.Database.ValkeyAddress)
		}
	}
	if vkClient == nil {
		memCredentials := repository.NewMemoryCredentialCache(cfg.Cache.CredentialTTL)
		memCredentials.StartCleanup(appCtx, cfg.Cache.CleanupInterval)
		memSessions := repository.NewMemorySessionStore(cfg.Cache.SessionTTL)
		memSessions.StartCleanup(appCtx, cfg.Cache.CleanupInterval)
		credentialCache, sessionStore = memCredentials, memSessions
	}

	resolver := credentials.NewResolver(botConfigRepo, credentialCache, cfg.Messenger.ConnectorType)
	clientCache = platform.NewClientCache(resolver, cfg.Messenger)

	backendClient := backend.NewClient(cfg.Backend)
	sessionDirectory = session.NewDirectory(backendClient, sessionStore)
	relayMonitor = botmonitor.New(cfg.Monitor.BufferSize, cfg.Monitor.EventTTL)
	orchestrator = relay.NewOrchestrator(clientCache, sessionDirectory, backendClient, cfg.Backend.Environment).
		WithMonitor(relayMonitor)

	messagePool = msgworker.NewMessageWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize)
	messagePool.Start(appCtx)

	logrus.WithFields(logrus.Fields{
		"server_id":   serverID,
		"backend":     cfg.Backend.APIServerURI,
		"environment": cfg.Backend.Environment,
	}).Info("[APP] Relay initialized")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// StopApp drains the worker pool and closes every connection.
func StopApp() {
	logrus.Info("[APP] Stopping application...")

	if messagePool != nil {
		messagePool.Stop()
	}
	if appCancel != nil {
		appCancel()
	}
	if vkClient != nil {
		vkClient.Close()
	}
	if db != nil {
		if err := database.Close(db); err != nil {
			logrus.WithError(err).Warn("[DB] Close failed")
		}
	}

	logrus.Info("[APP] Application stopped cleanly.")
}
