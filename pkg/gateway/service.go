package gateway

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"premiumshop/pkg/bus"
	"premiumshop/pkg/channel"
	"premiumshop/pkg/config"
	"premiumshop/pkg/metrics"
	"premiumshop/pkg/shop"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const (
	defaultHealthHost = "0.0.0.0"
	defaultHealthPort = 18790

	inboundTokenHeader = "X-Bridge-Token"
	inboundSource      = "http"
	maxInboundBody     = 8 << 20
)

// Service runs the storefront process: host transports feeding the inbound
// stream, the price refresher, the update watcher, the metrics observer and
// the HTTP status server.
type Service struct {
	cfg        *config.Config
	log        *slog.Logger
	bus        *bus.MessageBus
	store      *shop.Store
	metrics    *metrics.Metrics
	transports []channel.Transport

	mu              sync.RWMutex
	startedAt       time.Time
	pricesAttempted bool
	transportStates map[string]transportState
}

type transportState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status         string                    `json:"status"`
	UptimeSeconds  int64                     `json:"uptime_seconds"`
	PricesSource   string                    `json:"prices_source"`
	PricesLoadedAt string                    `json:"prices_loaded_at,omitempty"`
	Prices         shop.Prices               `json:"prices"`
	Transports     map[string]transportState `json:"transports"`
}

func NewService(cfg *config.Config, messageBus *bus.MessageBus, store *shop.Store, m *metrics.Metrics, transports []channel.Transport, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if messageBus == nil {
		return nil, errors.New("message bus is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if len(transports) == 0 {
		return nil, errors.New("at least one transport is required")
	}
	if m == nil {
		m = metrics.New()
	}
	if log == nil {
		log = slog.Default()
	}

	states := make(map[string]transportState, len(transports))
	for _, transport := range transports {
		states[transport.Name()] = transportState{}
	}

	return &Service{
		cfg:             cfg,
		log:             log.With("component", "gateway.service"),
		bus:             messageBus,
		store:           store,
		metrics:         m,
		transports:      transports,
		transportStates: states,
	}, nil
}

// Run blocks until ctx ends or one of the loops fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	group, groupCtx := errgroup.WithContext(ctx)

	// Subscribe before any loop can publish.
	events, unsubscribe := s.bus.SubscribeEvents(groupCtx, metrics.EventBuffer())
	defer unsubscribe()

	group.Go(func() error {
		return s.metrics.Consume(groupCtx, events)
	})

	for _, transport := range s.transports {
		s.setTransportState(transport.Name(), transportState{Running: true})

		group.Go(func() error {
			err := transport.Run(groupCtx, s.sink)
			s.setTransportState(transport.Name(), transportState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("run %s transport: %w", transport.Name(), err)
			}
			return nil
		})
	}

	group.Go(func() error {
		return s.store.WatchUpdates(groupCtx)
	})

	group.Go(func() error {
		s.store.Init(groupCtx)
		s.mu.Lock()
		s.pricesAttempted = true
		s.mu.Unlock()

		return s.store.RefreshPrices(groupCtx, s.refreshInterval())
	})

	group.Go(func() error {
		return s.runHTTPServer(groupCtx)
	})

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sink feeds transport reads into the shared inbound stream.
func (s *Service) sink(ctx context.Context, msg bus.InboundMessage) bool {
	s.metrics.ObserveInbound(msg.Source)
	return s.bus.PublishInbound(ctx, msg)
}

func (s *Service) refreshInterval() time.Duration {
	if seconds := s.cfg.Shop.RefreshIntervalSeconds; seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return shop.DefaultRefreshInterval
}

func (s *Service) address() string {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	return host + ":" + strconv.Itoa(port)
}

func (s *Service) runHTTPServer(ctx context.Context) error {
	addr := s.address()
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start status server: %w", err)
	}
	return nil
}

// Handler builds the gin router served by Run.
func (s *Service) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), s.observeHTTP)

	router.GET("/healthz", s.handleHealth)
	router.GET("/readyz", s.handleReady)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))
	router.POST("/bridge/inbound", s.handleInbound)

	return router
}

func (s *Service) observeHTTP(c *gin.Context) {
	start := time.Now()
	c.Next()

	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	s.metrics.ObserveHTTP(c.Request.Method, path, c.Writer.Status(), time.Since(start))
}

func (s *Service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.currentStatus("ok"))
}

func (s *Service) handleReady(c *gin.Context) {
	if !s.isReady() {
		c.JSON(http.StatusServiceUnavailable, s.currentStatus("not_ready"))
		return
	}
	c.JSON(http.StatusOK, s.currentStatus("ready"))
}

// handleInbound publishes a backend reply pushed over HTTP instead of a
// transport.
func (s *Service) handleInbound(c *gin.Context) {
	if !s.authorizedInbound(c.GetHeader(inboundTokenHeader)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid bridge token"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxInboundBody))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large"})
		return
	}

	data := strings.TrimSpace(string(body))
	if data == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty body"})
		return
	}

	if !s.sink(c.Request.Context(), bus.InboundMessage{Source: inboundSource, Data: data}) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "inbound stream closed"})
		return
	}

	s.log.Debug("Inbound data accepted", "source", inboundSource, "bytes", len(data))
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Service) authorizedInbound(token string) bool {
	want := strings.TrimSpace(s.cfg.Gateway.InboundToken)
	if want == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(want)) == 1
}

func (s *Service) currentStatus(status string) statusResponse {
	loadedAt := s.store.PricesLoadedAt()

	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	transports := make(map[string]transportState, len(s.transportStates))
	for name, state := range s.transportStates {
		transports[name] = state
	}

	response := statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		PricesSource:  "default",
		Prices:        s.store.Prices(),
		Transports:    transports,
	}
	if !loadedAt.IsZero() {
		response.PricesSource = "bot"
		response.PricesLoadedAt = loadedAt.UTC().Format(time.RFC3339)
	}

	return response
}

// isReady requires a running transport and at least one finished price load.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.pricesAttempted {
		return false
	}

	for _, state := range s.transportStates {
		if state.Running {
			return true
		}
	}
	return false
}

func (s *Service) setTransportState(name string, state transportState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transportStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
