// README: Entry point; loads config, wires stores and services, starts the
// HTTP server and the dispatch sweep.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sparkle/internal/config"
	"sparkle/internal/events"
	httptransport "sparkle/internal/http"
	"sparkle/internal/infra"
	"sparkle/internal/logging"
	"sparkle/internal/maps"
	"sparkle/internal/modules/booking"
	"sparkle/internal/modules/dispatch"
	"sparkle/internal/modules/job"
	"sparkle/internal/modules/partner"
	"sparkle/internal/modules/pricing"
	"sparkle/internal/modules/settlement"
	"sparkle/internal/payments"
)

func main() {
	cfg, err := config.Load(os.Getenv("SPARKLE_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier := infra.NewJWTVerifier(cfg.Auth.JWTSecret)

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("postgres init", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		logger.Fatal("redis init", zap.Error(err))
	}
	defer func() { _ = redisClient.Close() }()

	var pub events.Publisher = events.Nop{}
	if cfg.Events.AMQPURL != "" {
		conn, err := infra.NewAMQP(cfg.Events.AMQPURL)
		if err != nil {
			logger.Fatal("rabbitmq init", zap.Error(err))
		}
		pub, err = events.NewAMQPPublisher(conn, cfg.Events.Exchange)
		if err != nil {
			logger.Fatal("amqp publisher init", zap.Error(err))
		}
		defer func() { _ = pub.Close() }()
	} else {
		logger.Info("no amqp url configured, domain events are dropped")
	}

	gateway := buildGateway(cfg.Payments, logger)
	geocoder := buildGeocoder(cfg.Maps, logger)

	takeRate, err := decimal.NewFromString(cfg.Payout.TakeRate)
	if err != nil {
		logger.Fatal("parse payout.take_rate", zap.Error(err))
	}
	surgeShare, err := decimal.NewFromString(cfg.Payout.SurgeShare)
	if err != nil {
		logger.Fatal("parse payout.surge_share", zap.Error(err))
	}
	taxRate, err := decimal.NewFromString(cfg.Tax.Rate)
	if err != nil {
		logger.Fatal("parse tax.rate", zap.Error(err))
	}

	pricingSvc := pricing.NewService(pricing.DefaultSurgeTable(), takeRate, surgeShare)

	bookingStore := booking.NewPostgresStore(dbPool)
	bookingSvc := booking.NewService(bookingStore, pricingSvc, gateway, pub, booking.Config{
		FreeWindow:     time.Duration(cfg.Cancellation.FreeWindowMins) * time.Minute,
		TierAThreshold: time.Duration(cfg.Cancellation.TierAThresholdMins) * time.Minute,
		TierAFeeCents:  cfg.Cancellation.TierAFeeCents,
		TierBFeeCents:  cfg.Cancellation.TierBFeeCents,
		TaxRate:        taxRate,
	}, logger)

	partnerSvc := partner.NewService(partner.NewRedisStore(redisClient, dbPool), logger)

	jobSvc := job.NewService(job.NewPostgresStore(dbPool), bookingStore, pub, job.Config{
		VerificationTTL: time.Duration(cfg.Job.VerificationTTLMins) * time.Minute,
	}, logger)

	dispatchSvc := dispatch.NewService(dispatch.Deps{
		Offers:   dispatch.NewPostgresStore(dbPool),
		Bookings: bookingStore,
		Partners: partnerSvc,
		Payout:   pricingSvc,
		Jobs:     jobSvc,
		Payments: gateway,
		Geo:      geocoder,
		Events:   pub,
	}, dispatch.Config{
		Countdown:      time.Duration(cfg.Dispatch.CountdownSeconds) * time.Second,
		SweepInterval:  time.Duration(cfg.Dispatch.SweepIntervalSecs) * time.Second,
		MaxRounds:      cfg.Dispatch.MaxRounds,
		SearchWindow:   time.Duration(cfg.Dispatch.SearchWindowSeconds) * time.Second,
		BaseWaitMins:   cfg.Dispatch.BaseWaitMins,
		NearbyRadiusKm: cfg.Dispatch.NearbyRadiusKm,
	}, logger)
	bookingSvc.SetDispatcher(dispatchSvc)

	settlementSvc := settlement.NewService(settlement.NewPostgresStore(dbPool), bookingStore,
		gateway, pricingSvc, pub, settlement.Config{
			HighTipCents:           cfg.Settlement.HighTipCents,
			DetailedFeedbackMinLen: cfg.Settlement.DetailedFeedbackMinLen,
			TipDeclineOverCents:    cfg.Settlement.TipDeclineOverCents,
		}, logger)

	gin.SetMode(gin.ReleaseMode)
	router := httptransport.NewRouter(httptransport.ServerDeps{
		Pricing:    pricingSvc,
		Bookings:   bookingSvc,
		Dispatch:   dispatchSvc,
		Jobs:       jobSvc,
		Settlement: settlementSvc,
		Partners:   partnerSvc,
		Verifier:   verifier,
		Log:        logger,
	})

	go dispatchSvc.RunExpireSweep(ctx)

	logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
	if err := httptransport.Run(ctx, cfg.HTTP.Addr, router); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
	logger.Info("shut down cleanly")
}

func buildGateway(cfg config.PaymentsConfig, logger *zap.Logger) payments.Gateway {
	if cfg.Mode == "omise" {
		gw, err := payments.NewOmiseGateway(cfg.OmisePublicKey, cfg.OmiseSecretKey)
		if err != nil {
			logger.Fatal("omise init", zap.Error(err))
		}
		return gw
	}
	logger.Info("payments in sim mode")
	return payments.NewSimGateway(0)
}

func buildGeocoder(cfg config.MapsConfig, logger *zap.Logger) maps.Geocoder {
	if cfg.Mode == "google" {
		g, err := maps.NewGoogleGeocoder(cfg.APIKey)
		if err != nil {
			logger.Fatal("google maps init", zap.Error(err))
		}
		return g
	}
	return maps.NewStaticGeocoder(cfg.StaticSpeedKmh)
}
