package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ShinyNito/wechatkit/core"
	"github.com/ShinyNito/wechatkit/internal/tokend"
)

var (
	v          = viper.New()
	configPath string
	refresh    bool
)

var rootCmd = &cobra.Command{
	Use:           "wechat-tokend",
	Short:         "WeChat credential broker",
	Long:          "Keeps access_token and tickets for official accounts, WeCom apps and mini programs fresh and serves them over HTTP",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP credential service",
	RunE:  runServe,
}

var tokenCmd = &cobra.Command{
	Use:   "token <tenant> [name]",
	Short: "Print a credential for a configured tenant",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runToken,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file path (yaml, json or toml)")
	rootCmd.PersistentFlags().String("log-level", "", "Override log.level")

	serveCmd.Flags().StringP("listen", "l", "", "Override listen address")
	tokenCmd.Flags().BoolVar(&refresh, "refresh", false, "Force a remote fetch instead of using the cache")

	if err := v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "bind log-level flag: %v\n", err)
	}
	if err := v.BindPFlag("listen", serveCmd.Flags().Lookup("listen")); err != nil {
		fmt.Fprintf(os.Stderr, "bind listen flag: %v\n", err)
	}

	rootCmd.AddCommand(serveCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(ctx context.Context) (*tokend.App, error) {
	cfg, err := tokend.LoadConfig(v, configPath)
	if err != nil {
		return nil, err
	}
	logger, err := tokend.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("service", tokend.ServiceName))

	app, err := tokend.NewApp(ctx, cfg, logger, tokend.Overrides{})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return app, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = app.Logger.Sync() }()

	return app.Run(ctx)
}

func runToken(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	app, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = app.Close()
		_ = app.Logger.Sync()
	}()

	t, err := app.Registry.Get(args[0])
	if err != nil {
		return err
	}
	name := core.CredentialAccessToken
	if len(args) > 1 {
		name = args[1]
	}

	if refresh {
		if _, err := t.Store.Refresh(ctx, name); err != nil {
			return err
		}
	}
	cred, err := t.Store.Lookup(ctx, name)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(tokend.CredentialResponse{
		Tenant:    t.ID,
		Name:      name,
		Value:     cred.Value,
		ExpiresAt: cred.ExpiresAt.UTC(),
		ExpiresIn: int64(time.Until(cred.ExpiresAt) / time.Second),
	})
}
