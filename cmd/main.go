package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/crypto/bcrypt"

	"storefront/audit"
	"storefront/cache"
	"storefront/config"
	"storefront/controllers"
	"storefront/database"
	"storefront/events"
	"storefront/gateway"
	"storefront/logger"
	"storefront/metrics"
	"storefront/middleware"
	"storefront/models"
	"storefront/routes"
	"storefront/services"
)

type productStore interface {
	services.ProductLedger
	controllers.ProductCatalog
}

type stores struct {
	orders    services.OrderStore
	products  productStore
	users     controllers.UserStore
	blacklist middleware.Blacklist
	close     func()
}

func main() {
	if err := run(); err != nil {
		slog.Error("storefront stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.Init(cfg.LogLevel)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer st.close()

	if cfg.Auth.AdminEmail != "" {
		if err := seedAdmin(ctx, st.users, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
	}

	var gw gateway.Gateway
	switch cfg.Gateway.Driver {
	case "fake":
		gw = gateway.NewFakeGateway(cfg.Gateway.FrontendURL)
		log.Warn("using in-memory payment gateway")
	default:
		gw = gateway.NewStripeGateway(cfg.Gateway.SecretKey, cfg.Gateway.FrontendURL, cfg.Gateway.Timeout)
	}

	deps := services.Deps{
		Orders:         st.orders,
		Products:       st.products,
		Gateway:        gw,
		GatewayTimeout: cfg.Gateway.Timeout,
		SalesCacheTTL:  cfg.Redis.SalesTTL,
		Logger:         log,
	}

	if cfg.NATS.URL != "" {
		publisher, err := events.NewNatsPublisher(ctx, cfg.NATS.URL, log)
		if err != nil {
			log.Warn("NATS unavailable, order events disabled", "error", err)
		} else {
			defer publisher.Close()
			deps.Events = publisher
		}
	}

	if cfg.Redis.Addr != "" {
		rc := cache.NewRedisCache(cfg.Redis.Addr, "storefront")
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rc.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Warn("Redis unavailable, sales cache disabled", "error", err)
			_ = rc.Close()
		} else {
			defer rc.Close()
			deps.Cache = rc
		}
	}

	if cfg.Audit.DBPath != "" {
		auditLog, err := audit.Open(cfg.Audit.DBPath)
		if err != nil {
			return fmt.Errorf("open payment audit log: %w", err)
		}
		defer auditLog.Close()
		deps.Audit = auditLog
	}

	orderService := services.NewOrderService(deps)

	router := routes.NewRouter(routes.Handlers{
		Orders:    controllers.NewOrderController(orderService),
		Products:  controllers.NewProductController(st.products),
		Auth:      controllers.NewAuthController(st.users, st.blacklist, []byte(cfg.Auth.JWTSecret)),
		JWTSecret: []byte(cfg.Auth.JWTSecret),
		Blacklist: st.blacklist,
		Gatherer:  reg,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", "port", cfg.Port, "store", cfg.Store.Driver, "gateway", cfg.Gateway.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	log.Info("server exited")
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*stores, error) {
	if cfg.Store.Driver == "memory" {
		orders := database.NewMemoryOrderStore()
		log.Warn("using in-memory stores, data is lost on exit")
		return &stores{
			orders:    orders,
			products:  database.NewMemoryProductLedger(demoProducts()...),
			users:     &projectedUsers{MemoryUserStore: database.NewMemoryUserStore(), orders: orders},
			blacklist: database.NewMemoryTokenBlacklist(),
			close:     func() {},
		}, nil
	}

	db, err := database.ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.DB)
	if err != nil {
		return nil, err
	}
	log.Info("connected to MongoDB", "db", cfg.Mongo.DB)

	return &stores{
		orders:    database.NewOrderStore(db, cfg.Store.Timeout),
		products:  database.NewProductLedger(db, cfg.Store.Timeout),
		users:     database.NewUserStore(db, cfg.Store.Timeout),
		blacklist: database.NewTokenBlacklist(db, cfg.Store.Timeout),
		close: func() {
			if err := db.Close(); err != nil {
				log.Error("failed to close MongoDB", "error", err)
			}
		},
	}, nil
}

// projectedUsers mirrors new accounts into the memory order store so admin
// views can show the owning user.
type projectedUsers struct {
	*database.MemoryUserStore
	orders *database.MemoryOrderStore
}

func (p *projectedUsers) Create(ctx context.Context, user *models.User) error {
	if err := p.MemoryUserStore.Create(ctx, user); err != nil {
		return err
	}
	p.orders.AddUser(models.UserSummary{ID: user.ID, Name: user.Name, Email: user.Email})
	return nil
}

func seedAdmin(ctx context.Context, users controllers.UserStore, email, password string) error {
	email = strings.ToLower(email)
	if _, err := users.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, database.ErrNotFound) {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	err = users.Create(ctx, &models.User{
		Name:      "Admin",
		Email:     email,
		Password:  string(hashed),
		Role:      models.RoleAdmin,
		CreatedAt: time.Now().UTC(),
	})
	if errors.Is(err, database.ErrDuplicate) {
		return nil
	}
	return err
}

func demoProducts() []models.Product {
	now := time.Now().UTC()
	return []models.Product{
		{Name: "Mechanical Keyboard", Image: "/images/keyboard.jpg", Description: "Tenkeyless, brown switches", Price: 89.99, CountInStock: 12, CreatedAt: now, UpdatedAt: now},
		{Name: "Wireless Mouse", Image: "/images/mouse.jpg", Description: "Ergonomic, 2.4GHz", Price: 29.5, CountInStock: 30, CreatedAt: now, UpdatedAt: now},
		{Name: "27\" Monitor", Image: "/images/monitor.jpg", Description: "1440p IPS panel", Price: 279, CountInStock: 5, CreatedAt: now, UpdatedAt: now},
	}
}
