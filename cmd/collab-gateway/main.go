package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/collabai/chat-backend/internal/auth"
	"github.com/collabai/chat-backend/internal/chat"
	"github.com/collabai/chat-backend/internal/config"
	"github.com/collabai/chat-backend/internal/database"
	"github.com/collabai/chat-backend/internal/gateway"
	"github.com/collabai/chat-backend/internal/logging"
	"github.com/collabai/chat-backend/internal/presence"
	"github.com/collabai/chat-backend/internal/registry"
	"github.com/collabai/chat-backend/internal/rooms"
	"github.com/collabai/chat-backend/internal/server"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "collab-gateway",
		Short: "CollabAI realtime chat gateway",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis server address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("presence-ttl-hours", defaults.GetInt("presence.ttl_hours"), "Presence key TTL in hours")
	cmd.PersistentFlags().Int("connection-limit", defaults.GetInt("gateway.connection_limit"), "Maximum concurrent connections per user (0 = unlimited)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("jwt-secret", "", "JWT signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "presence.ttl_hours", "presence-ttl-hours")
	bindFlag(cmd, "gateway.connection_limit", "connection-limit")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.jwt_secret", "jwt-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: appConfig.RedisAddress})
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	defer cancelPing()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return err
	}
	logger.Info("redis connected", zap.String("address", appConfig.RedisAddress))

	verifier, err := auth.NewTokenVerifier(auth.TokenVerifierConfig{
		SigningSecret: []byte(appConfig.JWTSecret),
	})
	if err != nil {
		return err
	}

	presenceStore, err := presence.NewStore(presence.StoreConfig{
		Client: redisClient,
		TTL:    appConfig.PresenceTTL,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	chatService, err := chat.NewService(chat.ServiceConfig{
		Database: db,
		Clock:    time.Now,
	})
	if err != nil {
		return err
	}

	connectionRegistry := registry.New()
	fanout, err := gateway.NewFanout(presenceStore, connectionRegistry, logger)
	if err != nil {
		return err
	}

	roomService, err := rooms.NewService(rooms.ServiceConfig{
		Store:       presenceStore,
		Broadcaster: fanout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	gw, err := gateway.New(gateway.Dependencies{
		Verifier:        verifier,
		Presence:        presenceStore,
		Registry:        connectionRegistry,
		Rooms:           roomService,
		Fanout:          fanout,
		Membership:      chatService,
		Messages:        chatService,
		Logger:          logger,
		ConnectionLimit: appConfig.ConnectionLimit,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Verifier: verifier,
		Upgrader: gw,
		Presence: presenceStore,
		Registry: connectionRegistry,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
