package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/collab"
	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/config"
	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/database"
	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/documents"
	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/server"
	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cowrite-api",
		Short: "Cowrite realtime collaboration and signaling service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newCreateDocumentCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("signing-secret", "", "TAuth session signing secret (overrides env)")
	flags.String("cookie-name", defaults.GetString("tauth.cookie_name"), "TAuth session cookie name")
	flags.String("session-issuer", defaults.GetString("tauth.issuer"), "Expected TAuth session issuer")
	flags.String("allowed-origins", defaults.GetString("cors.allowed_origins"), "Comma separated CORS origins")
	flags.Int("send-buffer", defaults.GetInt("realtime.send_buffer"), "Outbound events buffered per connection")
	flags.Int("chat-max-length", defaults.GetInt("realtime.chat_max_length"), "Maximum chat message length in characters")
	flags.Float64("chat-rate", defaults.GetFloat64("realtime.chat_rate_per_second"), "Chat messages per second per connection")
	flags.Int("chat-burst", defaults.GetInt("realtime.chat_burst"), "Chat burst allowance per connection")
	flags.Duration("ping-interval", defaults.GetDuration("realtime.ping_interval"), "Websocket ping interval")
	flags.Duration("pong-wait", defaults.GetDuration("realtime.pong_wait"), "Websocket pong deadline")
	flags.Int64("max-message-bytes", defaults.GetInt64("realtime.max_message_bytes"), "Maximum inbound websocket frame size")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "tauth.signing_secret", "signing-secret")
	bindFlag(cmd, "tauth.cookie_name", "cookie-name")
	bindFlag(cmd, "tauth.issuer", "session-issuer")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
	bindFlag(cmd, "realtime.send_buffer", "send-buffer")
	bindFlag(cmd, "realtime.chat_max_length", "chat-max-length")
	bindFlag(cmd, "realtime.chat_rate_per_second", "chat-rate")
	bindFlag(cmd, "realtime.chat_burst", "chat-burst")
	bindFlag(cmd, "realtime.ping_interval", "ping-interval")
	bindFlag(cmd, "realtime.pong_wait", "pong-wait")
	bindFlag(cmd, "realtime.max_message_bytes", "max-message-bytes")
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

type services struct {
	config config.AppConfig
	logger *zap.Logger
	db     *gorm.DB
	store  *documents.Store
}

func openServices() (*services, func(), error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}

	store, err := documents.NewStore(documents.StoreConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: documents.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		_ = sqlDB.Close()
		_ = logger.Sync()
		return nil, nil, err
	}

	cleanup := func() {
		_ = sqlDB.Close()
		_ = logger.Sync()
	}
	return &services{config: appConfig, logger: logger, db: db, store: store}, cleanup, nil
}

func runServer(ctx context.Context) error {
	rt, cleanup, err := openServices()
	if err != nil {
		return err
	}
	defer cleanup()
	logger := rt.logger
	appConfig := rt.config

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.TAuthSigningKey),
		Issuer:        appConfig.TAuthIssuer,
		CookieName:    appConfig.TAuthCookieName,
	})
	if err != nil {
		return err
	}

	usersService, err := users.NewService(users.ServiceConfig{
		Database: rt.db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := collab.NewMetrics(registry)
	if err != nil {
		return err
	}

	coordinator, err := collab.NewCoordinator(collab.CoordinatorConfig{
		Store:             rt.store,
		Clock:             time.Now,
		IDProvider:        documents.NewUUIDProvider(),
		Logger:            logger,
		Metrics:           metrics,
		SendBuffer:        appConfig.Realtime.SendBuffer,
		ChatMaxLength:     appConfig.Realtime.ChatMaxLength,
		ChatRatePerSecond: appConfig.Realtime.ChatRatePerSecond,
		ChatBurst:         appConfig.Realtime.ChatBurst,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: sessionValidator,
		UserResolver:     usersService,
		Coordinator:      coordinator,
		MetricsGatherer:  registry,
		AllowedOrigins:   appConfig.AllowedOrigins,
		Realtime: server.RealtimeSettings{
			PingInterval:    appConfig.Realtime.PingInterval,
			PongWait:        appConfig.Realtime.PongWait,
			MaxMessageBytes: appConfig.Realtime.MaxMessageBytes,
		},
		Logger: logger,
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
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		coordinator.Wait()
		logger.Info("server stopped")
		return err
	case err := <-errCh:
		return err
	}
}

func newCreateDocumentCommand() *cobra.Command {
	var request struct {
		id      string
		name    string
		owner   string
		content string
		file    string
	}
	cmd := &cobra.Command{
		Use:   "create-document",
		Short: "Create a document so clients can join it",
		RunE: func(cmd *cobra.Command, args []string) error {
			documentID, err := documents.NewDocumentID(request.id)
			if err != nil {
				return err
			}
			ownerID, err := documents.NewEditorID(request.owner)
			if err != nil {
				return err
			}
			rt, cleanup, err := openServices()
			if err != nil {
				return err
			}
			defer cleanup()

			createRequest := documents.CreateRequest{
				DocumentID: documentID,
				Name:       request.name,
				Content:    request.content,
				OwnerID:    ownerID,
			}
			if request.file != "" {
				createRequest.Type = documents.DocumentTypeFile
				createRequest.FileURL = request.file
			}
			document, err := rt.store.Create(cmd.Context(), createRequest)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", document.DocumentID, document.Type)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&request.id, "id", "", "Document identifier")
	flags.StringVar(&request.name, "name", "", "Document name")
	flags.StringVar(&request.owner, "owner", "", "Owner user id")
	flags.StringVar(&request.content, "content", "", "Initial text content")
	flags.StringVar(&request.file, "file-url", "", "Create a file document referencing this URL instead of text")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
