package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iurnickita/paywebhook/internal/auth"
	"github.com/iurnickita/paywebhook/internal/currency"
	"github.com/iurnickita/paywebhook/internal/fulfillment"
	"github.com/iurnickita/paywebhook/internal/handler"
	"github.com/iurnickita/paywebhook/internal/idempotency"
	"github.com/iurnickita/paywebhook/internal/logger"
	"github.com/iurnickita/paywebhook/internal/reconciler"
	"github.com/iurnickita/paywebhook/internal/service"
	"github.com/iurnickita/paywebhook/internal/service/gatewayclient"
	"github.com/iurnickita/paywebhook/internal/store"
	"github.com/iurnickita/paywebhook/internal/store/memstore"
)

func serveCmd(v *viper.Viper, load loadConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the notification HTTP server",
		Long: `Run the notification HTTP server.

Examples:
  paywebhook serve --addr :8080
  PAYWEBHOOK_GATEWAY_SECRET_KEY=... PAYWEBHOOK_STORE_DB_DSN=postgres://... paywebhook serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, load)
		},
	}

	cmd.Flags().String("addr", ":8080", "listen address")
	cmd.Flags().String("dsn", "", "Postgres DSN, empty for in-memory store")
	cmd.Flags().Bool("test-mode", false, "allow signature bypass with ?test=true (never in production)")
	bindFlag(v, cmd, "server.server_addr", "addr")
	bindFlag(v, cmd, "store.db_dsn", "dsn")
	bindFlag(v, cmd, "gateway.test_mode", "test-mode")

	return cmd
}

func runServe(ctx context.Context, load loadConfig) error {
	cfg, err := load()
	if err != nil {
		return err
	}

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}
	defer zaplog.Sync()

	var st store.Store
	if cfg.Store.DBDsn == "" {
		zaplog.Warn("no database configured, using in-memory store")
		st = memstore.New()
	} else {
		st, err = store.NewStore(cfg.Store)
		if err != nil {
			return err
		}
	}
	defer st.Close()

	gateway := gatewayclient.NewGatewayClient(cfg.Service.GatewayAddr, cfg.Service.AccessToken, cfg.Service.GatewayTimeout)
	reconciler := reconciler.NewReconciler(reconciler.Deps{
		Orders:      st,
		Payments:    st,
		Gateway:     gateway,
		Config:      cfg.Service,
		Currency:    currency.NewConverter(),
		Fulfillment: fulfillment.NewFulfillment(st, zaplog.Named("fulfillment")),
		Logger:      zaplog.Named("reconciler"),
	})
	service, err := service.NewService(cfg.Service, idempotency.NewGuard(st, cfg.Service.ProcessingLease), reconciler, zaplog.Named("service"))
	if err != nil {
		return err
	}
	auth := auth.NewAuth(cfg.Handler.AdminSecret)

	err = handler.Serve(ctx, cfg.Handler, cfg.Service.SignatureHeader, auth, service, st, zaplog)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
