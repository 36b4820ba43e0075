package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AH96HSQ/Zurtex-Global/internal/chaindata"
	"github.com/AH96HSQ/Zurtex-Global/internal/config"
	"github.com/AH96HSQ/Zurtex-Global/internal/db"
	internalhttp "github.com/AH96HSQ/Zurtex-Global/internal/http"
	"github.com/AH96HSQ/Zurtex-Global/internal/logging"
	"github.com/AH96HSQ/Zurtex-Global/internal/monitor"
	"github.com/AH96HSQ/Zurtex-Global/internal/notify"
	"github.com/AH96HSQ/Zurtex-Global/internal/payments"
	"github.com/AH96HSQ/Zurtex-Global/internal/pricing"
	"github.com/AH96HSQ/Zurtex-Global/internal/services"
	"github.com/AH96HSQ/Zurtex-Global/internal/store"
	"github.com/AH96HSQ/Zurtex-Global/internal/wallet"

	"github.com/shopspring/decimal"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		bootLogger := logging.New("info", false)
		bootLogger.Fatal().Err(err).Msg("config load failed")
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Pretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("db connect failed")
	}
	defer pool.Close()

	deriver, err := wallet.NewDeriver(cfg.Wallet.Mnemonic)
	if err != nil {
		// Refuse to start: an invalid seed phrase would issue addresses we
		// cannot later sign for.
		logger.Fatal().Err(err).Msg("wallet mnemonic rejected")
	}

	plans := make(map[string]decimal.Decimal, len(cfg.Orders.Plans))
	for planType, priceUSD := range cfg.Orders.Plans {
		price, err := decimal.NewFromString(priceUSD)
		if err != nil || !price.IsPositive() {
			logger.Fatal().Str("plan", planType).Str("price", priceUSD).Msg("invalid plan price")
		}
		plans[planType] = price
	}

	fallback := decimal.Decimal{}
	if cfg.Pricing.FallbackUSD != "" {
		fallback, err = decimal.NewFromString(cfg.Pricing.FallbackUSD)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid pricing fallback")
		}
	}

	st := store.New(pool)
	chain := chaindata.NewClient(cfg.Chain.APIBase, cfg.Chain.Token, chaindata.DefaultRetryPolicy())
	oracle := pricing.NewOracle(cfg.Pricing.APIBase, fallback, logger)
	notifier := notify.NewClient(cfg.Notify.URL, cfg.NotifyTimeout(), logger)

	ledger := &payments.Ledger{
		Writer:                st,
		Notifier:              notifier,
		RequiredConfirmations: cfg.Chain.RequiredConfirmations,
		Logger:                logger.With().Str("component", "ledger").Logger(),
	}

	orderSvc := &services.OrderService{
		Store:     st,
		Allocator: &wallet.Allocator{Source: st, Deriver: deriver},
		Pricing:   oracle,
		Plans:     plans,
		TTL:       cfg.OrderTTL(),
		Logger:    logger.With().Str("component", "orders").Logger(),
	}

	mon := &monitor.Monitor{
		Orders:         st,
		Chain:          chain,
		Ledger:         ledger,
		Interval:       cfg.MonitorInterval(),
		RequestGap:     cfg.MonitorRequestGap(),
		SocketEndpoint: cfg.Chain.SocketEndpoint,
		SocketToken:    cfg.Chain.Token,
		Logger:         logger.With().Str("component", "monitor").Logger(),
	}

	handler := &internalhttp.Handler{
		Orders:  orderSvc,
		Monitor: mon,
		Ledger:  ledger,
		Counts:  st,
		Logger:  logger.With().Str("component", "http").Logger(),
	}
	srv := internalhttp.NewServer(handler)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go mon.Run(ctx)

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(ctxShutdown)
}
