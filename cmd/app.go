package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"premiumshop/pkg/bridge"
	"premiumshop/pkg/bus"
	"premiumshop/pkg/channel"
	"premiumshop/pkg/channel/loopback"
	"premiumshop/pkg/channel/telegram"
	"premiumshop/pkg/config"
	"premiumshop/pkg/logger"
	"premiumshop/pkg/shop"
	"premiumshop/pkg/webapp"

	"golang.org/x/sync/errgroup"
)

// app is the wired storefront shared by every command.
type app struct {
	cfg        *config.Config
	log        *slog.Logger
	bus        *bus.MessageBus
	session    *webapp.Session
	bridge     *bridge.Bridge
	store      *shop.Store
	transports []channel.Transport
}

// newApp loads configuration and builds the bus, session, transports, bridge
// and store. The caller owns app.close.
func newApp(component string) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	slog.SetDefault(appLogger)
	log := slog.Default().With("component", component)

	return buildApp(cfg, log, dryRun)
}

func buildApp(cfg *config.Config, log *slog.Logger, dryRun bool) (*app, error) {
	session, err := buildSession(cfg, time.Now())
	if err != nil {
		return nil, err
	}
	if userID, ok := session.UserID(); ok {
		log.Info("Mini-App session ready", "user_id", userID, "platform", session.Platform(), "query_id", session.QueryID())
	} else {
		log.Info("Mini-App session has no user, storefront runs on default prices")
	}

	messageBus := bus.NewMessageBus()

	transports, err := enabledTransports(cfg, messageBus, log, dryRun)
	if err != nil {
		messageBus.Close()
		return nil, err
	}

	opts := []bridge.Option{bridge.WithLogger(log)}
	if seconds := cfg.Bridge.TimeoutSeconds; seconds > 0 {
		opts = append(opts, bridge.WithTimeout(time.Duration(seconds)*time.Second))
	}

	// The first transport carries outbound envelopes; all of them feed the
	// inbound stream.
	b, err := bridge.New(transports[0], messageBus, session, opts...)
	if err != nil {
		messageBus.Close()
		return nil, err
	}

	store, err := shop.NewStore(b, messageBus, session, cfg.Shop, shop.WithLogger(log))
	if err != nil {
		messageBus.Close()
		return nil, err
	}

	return &app{
		cfg:        cfg,
		log:        log,
		bus:        messageBus,
		session:    session,
		bridge:     b,
		store:      store,
		transports: transports,
	}, nil
}

func (a *app) close() {
	a.bus.Close()
}

// withTransports runs every transport in the background while fn executes.
func (a *app) withTransports(ctx context.Context, fn func(context.Context) error) error {
	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)

	for _, transport := range a.transports {
		group.Go(func() error {
			err := transport.Run(groupCtx, func(ctx context.Context, msg bus.InboundMessage) bool {
				return a.bus.PublishInbound(ctx, msg)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("run %s transport: %w", transport.Name(), err)
			}
			return nil
		})
	}

	fnErr := fn(groupCtx)
	cancel()

	if err := group.Wait(); err != nil && fnErr == nil {
		return err
	}
	return fnErr
}

// buildSession resolves the Mini-App user from initData. Without initData the
// session has no user and the storefront runs on defaults.
func buildSession(cfg *config.Config, now time.Time) (*webapp.Session, error) {
	raw := strings.TrimSpace(cfg.WebApp.InitData)
	if raw == "" {
		return webapp.NewSession(webapp.InitData{}, cfg.WebApp.Platform), nil
	}

	var (
		data webapp.InitData
		err  error
	)
	if cfg.WebApp.SkipValidation {
		data, err = webapp.ParseInitData(raw)
	} else {
		maxAge := webapp.DefaultMaxAge
		if hours := cfg.WebApp.MaxAgeHours; hours > 0 {
			maxAge = time.Duration(hours) * time.Hour
		}
		data, err = webapp.ValidateInitData(raw, cfg.Channels.Telegram.Token, maxAge, now)
	}
	if err != nil {
		return nil, fmt.Errorf("init data: %w", err)
	}

	return webapp.NewSession(data, cfg.WebApp.Platform), nil
}

func enabledTransports(cfg *config.Config, messageBus *bus.MessageBus, log *slog.Logger, dryRun bool) ([]channel.Transport, error) {
	if dryRun {
		transport, err := loopback.NewTransport(messageBus, cannedBackend(cfg.Shop), log)
		if err != nil {
			return nil, err
		}
		return []channel.Transport{transport}, nil
	}

	transports := make([]channel.Transport, 0, 2)

	if cfg.Channels.Telegram.Enabled {
		transport, err := telegram.NewTransport(cfg.Channels.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("configure telegram transport: %w", err)
		}
		transports = append(transports, transport)
	}

	if cfg.Channels.Loopback.Enabled {
		transport, err := loopback.NewTransport(messageBus, nil, log)
		if err != nil {
			return nil, fmt.Errorf("configure loopback transport: %w", err)
		}
		transports = append(transports, transport)
	}

	if len(transports) == 0 {
		return nil, errors.New("no transports are enabled")
	}

	return transports, nil
}

func enabledTransportNames(transports []channel.Transport) string {
	names := make([]string, 0, len(transports))
	for _, transport := range transports {
		names = append(names, transport.Name())
	}

	return strings.Join(names, ",")
}

// cannedBackend answers get_user_data with the configured default prices,
// standing in for the bot backend on --dry-run.
func cannedBackend(cfg config.ShopConfig) loopback.Responder {
	prices := map[string]int{
		"three_months":  cfg.DefaultPrices.ThreeMonths,
		"six_months":    cfg.DefaultPrices.SixMonths,
		"twelve_months": cfg.DefaultPrices.TwelveMonths,
	}

	return func(data []byte) (string, bool) {
		var envelope struct {
			Type    string          `json:"type"`
			UserID  json.RawMessage `json:"user_id"`
			QueryID string          `json:"web_app_query_id"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil || envelope.Type != bridge.RequestGetUserData || len(envelope.UserID) == 0 {
			return "", false
		}

		reply, err := json.Marshal(map[string]any{
			"user_id":          envelope.UserID,
			"web_app_query_id": envelope.QueryID,
			"bonus_balance":    0,
			"prices":           prices,
		})
		if err != nil {
			return "", false
		}
		return string(reply), true
	}
}
