package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loftcrm/mailsync/internal/auth"
	"github.com/loftcrm/mailsync/internal/events"
	"github.com/loftcrm/mailsync/internal/provider/gmail"
	"github.com/loftcrm/mailsync/internal/server"
	"github.com/loftcrm/mailsync/internal/storage"
	"github.com/loftcrm/mailsync/internal/sync"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync trigger API",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.SetFormatter(&log.JSONFormatter{})
		log.SetLevel(log.InfoLevel)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		connString := viper.GetString("database.url")
		if connString == "" {
			return fmt.Errorf("database.url not configured")
		}

		store, err := storage.New(ctx, connString)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer store.Close()

		app := auth.GoogleApp{
			ClientID:     viper.GetString("google.client_id"),
			ClientSecret: viper.GetString("google.client_secret"),
			Scopes:       []string{"https://www.googleapis.com/auth/gmail.readonly"},
		}

		var publisher sync.EventPublisher
		if natsURL := viper.GetString("nats.url"); natsURL != "" {
			p, err := events.NewPublisher(natsURL)
			if err != nil {
				return fmt.Errorf("connect to NATS: %w", err)
			}
			defer p.Close()
			if err := p.EnsureStream(ctx); err != nil {
				return fmt.Errorf("ensure event stream: %w", err)
			}
			publisher = p
		}

		var verifier *auth.JWTVerifier
		if jwksURL := viper.GetString("auth.jwks_url"); jwksURL != "" {
			verifier, err = auth.NewJWTVerifier(jwksURL)
			if err != nil {
				return fmt.Errorf("create JWT verifier: %w", err)
			}
		} else {
			log.Warn("auth.jwks_url not set, API authentication disabled")
		}

		engine := sync.NewEngine(storage.NewResolver(store), gmail.Factory(app))
		manager := sync.NewManager(engine, publisher)

		addr := viper.GetString("http.addr")
		if addr == "" {
			addr = ":8080"
		}
		srv := server.New(ctx, manager, verifier)

		go func() {
			if err := srv.Start(addr); err != nil {
				log.WithError(err).Fatal("HTTP server failed")
			}
		}()
		log.WithField("addr", addr).Info("mailsync started")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")
		manager.StopAll()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
