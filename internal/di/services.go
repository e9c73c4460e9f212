package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/cryptovault/internal/clients/assetstore"
	"github.com/aristath/cryptovault/internal/clients/auth"
	"github.com/aristath/cryptovault/internal/clients/coingecko"
	"github.com/aristath/cryptovault/internal/config"
	"github.com/aristath/cryptovault/internal/events"
	"github.com/aristath/cryptovault/internal/modules/coins"
	"github.com/aristath/cryptovault/internal/modules/valuation"
	"github.com/aristath/cryptovault/internal/notifications"
	"github.com/aristath/cryptovault/internal/session"
)

// InitializeServices creates the clients, messaging and services
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	policy, err := valuation.ParseFallbackPolicy(cfg.Refresh.FallbackPolicy)
	if err != nil {
		return err
	}

	// Clients
	container.AuthClient = auth.NewClient(cfg.AuthServiceURL, cfg.ServiceTimeout, log)
	container.AssetsClient = assetstore.NewClient(cfg.AssetStoreURL, cfg.ServiceTimeout, log)
	container.MarketClient = coingecko.NewClient(coingecko.Config{
		BaseURL:        cfg.MarketDataURL,
		Timeout:        cfg.Market.Timeout,
		RequestsPerMin: cfg.Market.RequestsPerMin,
		Burst:          cfg.Market.Burst,
		BreakerTimeout: cfg.Market.BreakerTimeout,
	}, container.LocalStore, log)

	// Messaging
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)
	container.Notifications = notifications.NewQueue(cfg.Notifications.TTL, log)

	// Every accepted notification is mirrored onto the event stream
	eventManager := container.EventManager
	container.Notifications.OnPush(func(n notifications.Notification) {
		eventManager.Emit("notifications", &events.NotificationRaisedData{
			ID:        string(n.ID),
			Kind:      string(n.Kind),
			Message:   n.Message,
			ExpiresAt: n.ExpiresAt,
		})
	})

	// Services
	container.Sessions = session.NewController(
		container.AuthClient,
		container.TokenStore,
		container.Notifications,
		container.EventManager,
		log,
	)
	container.Engine = valuation.NewEngine(
		container.AssetsClient,
		container.MarketClient,
		container.SnapshotCache,
		container.Notifications,
		container.EventManager,
		policy,
		log,
	)
	// Logout and account switches drop the previous session's portfolio
	container.Sessions.Subscribe(container.Engine.SessionChanged)
	container.Coins = coins.NewService(container.MarketClient, container.Engine, container.Notifications, log)

	log.Debug().Str("fallback_policy", string(policy)).Msg("Services initialized")
	return nil
}
