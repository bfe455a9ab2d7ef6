package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	botdomain "github.com/AzielCF/az-messenger/botconfig/domain"
	"github.com/AzielCF/az-messenger/messenger/credentials"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Manage bot channel configurations",
}

var botDeployCmd = &cobra.Command{
	Use:   "deploy <botId>",
	Short: "Store a new configuration version with Messenger credentials",
	Args:  cobra.ExactArgs(1),
	RunE:  runBotDeploy,
}

var botShowCmd = &cobra.Command{
	Use:   "show <botId>",
	Short: "Print the current configuration of a bot",
	Args:  cobra.ExactArgs(1),
	RunE:  runBotShow,
}

var botListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bots and their current versions",
	Args:  cobra.NoArgs,
	RunE:  runBotList,
}

func init() {
	botDeployCmd.Flags().String("app-secret", "", "Messenger app secret used to verify webhook signatures")
	botDeployCmd.Flags().String("verify-token", "", "token expected in the webhook subscription handshake")
	botDeployCmd.Flags().String("page-token", "", "page access token used to send replies")
	for _, name := range []string{"app-secret", "verify-token", "page-token"} {
		_ = botDeployCmd.MarkFlagRequired(name)
	}

	botCmd.AddCommand(botDeployCmd, botShowCmd, botListCmd)
	rootCmd.AddCommand(botCmd)
}

func runBotDeploy(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	initStorage(ctx)
	defer StopApp()

	appSecret, _ := cmd.Flags().GetString("app-secret")
	verifyToken, _ := cmd.Flags().GetString("verify-token")
	pageToken, _ := cmd.Flags().GetString("page-token")

	bot, err := botConfigUsecase.Deploy(ctx, botdomain.DeployRequest{
		BotID: args[0],
		Channels: []botdomain.ChannelConnector{{
			Type: cfg.Messenger.ConnectorType,
			Config: map[string]string{
				credentials.KeyAppSecret:         appSecret,
				credentials.KeyVerificationToken: verifyToken,
				credentials.KeyPageAccessToken:   pageToken,
			},
		}},
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "deployed %s version %d\n", bot.BotID, bot.Version)
	fmt.Fprintf(cmd.OutOrStdout(), "webhook path: %s/webhook/%s\n", cfg.App.BasePath, bot.BotID)
	return nil
}

func runBotShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	initStorage(ctx)
	defer StopApp()

	bot, err := botConfigUsecase.Current(ctx, args[0])
	if err != nil {
		return err
	}
	printBot(cmd, bot)
	return nil
}

func runBotList(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	initStorage(ctx)
	defer StopApp()

	bots, err := botConfigUsecase.List(ctx)
	if err != nil {
		return err
	}
	for _, bot := range bots {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\tv%d\t%s\n", bot.BotID, bot.Version, humanize.Time(bot.CreatedAt))
	}
	return nil
}

func printBot(cmd *cobra.Command, bot botdomain.BotConfig) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "bot:     %s\nversion: %d (%s)\n", bot.BotID, bot.Version, humanize.Time(bot.CreatedAt))
	for _, ch := range bot.Channels {
		fmt.Fprintf(out, "channel: %s\n", ch.Type)
		keys := make([]string, 0, len(ch.Config))
		for k := range ch.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %s: %s\n", k, maskSecret(ch.Config[k]))
		}
	}
}

// maskSecret keeps the last four characters of values long enough to hide.
func maskSecret(v string) string {
	if len(v) <= 8 {
		return strings.Repeat("*", len(v))
	}
	return strings.Repeat("*", len(v)-4) + v[len(v)-4:]
}
