package shop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"premiumshop/pkg/bridge"
	"premiumshop/pkg/bus"
	"premiumshop/pkg/config"
	"premiumshop/pkg/webapp"
)

const (
	// DefaultRefreshInterval is how often RefreshPrices reloads prices.
	DefaultRefreshInterval = 30 * time.Second

	shareText = "Join Telegram Premium at a better price! Get your subscription at a discount!"
)

// Backend is the part of the bridge the storefront uses.
type Backend interface {
	RequestUserData(ctx context.Context) (bridge.Reply, error)
	SendWebAppData(ctx context.Context, requestType string, fields map[string]any, queryID string) error
}

// UserSource supplies the Mini-App user.
type UserSource interface {
	User() (webapp.User, bool)
}

// UserData is the storefront's view of the current user.
type UserData struct {
	ID             int64
	Username       string
	FirstName      string
	LastName       string
	BonusBalance   int64
	ReferralCode   string
	ReferralsCount int
}

// userDataReply is the backend's get_user_data answer and the shape of
// unsolicited user updates. Absent fields leave stored values untouched.
type userDataReply struct {
	UserID         json.RawMessage `json:"user_id"`
	Prices         *Prices         `json:"prices"`
	Username       *string         `json:"username"`
	FirstName      *string         `json:"first_name"`
	LastName       *string         `json:"last_name"`
	BonusBalance   *int64          `json:"bonus_balance"`
	ReferralCode   *string         `json:"referral_code"`
	ReferralsCount *int            `json:"referrals_count"`
}

// Store is the storefront state for one session: prices, user data, the
// selected tier and the current crypto invoice.
type Store struct {
	backend  Backend
	bus      *bus.MessageBus
	users    UserSource
	cfg      config.ShopConfig
	defaults Prices
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
	intn     func(int) int

	mu             sync.RWMutex
	prices         Prices
	pricesLoadedAt time.Time
	user           UserData
	selected       *Tier
	invoice        *CryptoInvoice
}

type Option func(*Store)

func WithNotifier(notifier Notifier) Option {
	return func(s *Store) {
		if notifier != nil {
			s.notifier = notifier
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRand replaces the source of order ids; intn(n) must return [0, n).
func WithRand(intn func(int) int) Option {
	return func(s *Store) {
		if intn != nil {
			s.intn = intn
		}
	}
}

// NewStore builds a storefront over backend. messageBus may be nil, in which
// case WatchUpdates is unavailable and no lifecycle events are published.
func NewStore(backend Backend, messageBus *bus.MessageBus, users UserSource, cfg config.ShopConfig, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if users == nil {
		return nil, errors.New("user source is required")
	}

	defaults := pricesFromConfig(cfg.DefaultPrices)
	s := &Store{
		backend:  backend,
		bus:      messageBus,
		users:    users,
		cfg:      cfg,
		defaults: defaults,
		prices:   defaults,
		log:      slog.Default(),
		now:      time.Now,
		intn:     rand.IntN,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "shop")
	if s.notifier == nil {
		s.notifier = LogNotifier{Log: s.log}
	}

	return s, nil
}

// Init loads the session user and then prices, mirroring the app start-up.
func (s *Store) Init(ctx context.Context) {
	s.LoadUserData()
	s.LoadPrices(ctx)
}

// LoadUserData seeds user data from the session. Without a session user the
// defaults apply: zero balance and a generated referral code.
func (s *Store) LoadUserData() UserData {
	data := UserData{}
	if user, ok := s.users.User(); ok {
		data.ID = user.ID
		data.Username = user.Username
		data.FirstName = user.FirstName
		data.LastName = user.LastName
	} else {
		data.ReferralCode = "TG" + strconv.FormatInt(s.now().UnixMilli(), 10)
		s.log.Warn("No session user, using default user data")
	}

	s.mu.Lock()
	s.user = data
	s.mu.Unlock()

	return data
}

// LoadPrices asks the backend for user data and applies its prices. Any
// failure leaves the storefront on default prices; it never returns an error.
func (s *Store) LoadPrices(ctx context.Context) Prices {
	reply, err := s.backend.RequestUserData(ctx)
	if err == nil {
		var prices Prices
		if prices, err = s.applyReply(reply); err == nil {
			s.log.Info("Prices loaded from bot", "three_months", prices.ThreeMonths, "six_months", prices.SixMonths, "twelve_months", prices.TwelveMonths)
			s.publishEvent(ctx, bus.Event{Type: bus.EventPricesLoaded, CorrelationID: reply.CorrelationID})
			return prices
		}
	}

	s.log.Warn("Using default prices", "error", err)
	s.mu.Lock()
	s.prices = s.defaults
	s.mu.Unlock()
	s.publishEvent(ctx, bus.Event{Type: bus.EventPricesDefaulted, Error: err.Error()})
	s.notifier.Notify(LevelInfo, "Prices are temporarily unavailable, showing default prices")

	return s.defaults
}

// applyReply merges the user fields of reply and installs its prices.
func (s *Store) applyReply(reply bridge.Reply) (Prices, error) {
	var decoded userDataReply
	if err := reply.Decode(&decoded); err != nil {
		return Prices{}, err
	}

	s.mergeUser(decoded)

	if decoded.Prices == nil || *decoded.Prices == (Prices{}) {
		return Prices{}, fmt.Errorf("%w: reply has no prices", bridge.ErrMalformedReply)
	}

	prices := decoded.Prices.withDefaults(s.defaults)
	s.mu.Lock()
	s.prices = prices
	s.pricesLoadedAt = s.now()
	s.mu.Unlock()

	return prices, nil
}

func (s *Store) mergeUser(decoded userDataReply) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if decoded.Username != nil {
		s.user.Username = *decoded.Username
	}
	if decoded.FirstName != nil {
		s.user.FirstName = *decoded.FirstName
	}
	if decoded.LastName != nil {
		s.user.LastName = *decoded.LastName
	}
	if decoded.BonusBalance != nil {
		s.user.BonusBalance = *decoded.BonusBalance
	}
	if decoded.ReferralCode != nil {
		s.user.ReferralCode = *decoded.ReferralCode
	}
	if decoded.ReferralsCount != nil {
		s.user.ReferralsCount = *decoded.ReferralsCount
	}
}

// RefreshPrices reloads prices every interval until ctx ends.
func (s *Store) RefreshPrices(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.LoadPrices(ctx)
		}
	}
}

// WatchUpdates merges unsolicited backend messages addressed to the session
// user into user data and prices until ctx ends.
func (s *Store) WatchUpdates(ctx context.Context) error {
	if s.bus == nil {
		return errors.New("message bus is required to watch updates")
	}

	inbound, unsubscribe := s.bus.SubscribeInbound(ctx, 16)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			s.applyUpdate(msg.Data)
		}
	}
}

func (s *Store) applyUpdate(data string) bool {
	trimmed := strings.TrimSpace(data)
	if !strings.HasPrefix(trimmed, "{") {
		return false
	}

	var decoded userDataReply
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return false
	}

	user, ok := s.users.User()
	if !ok || !bridge.SameUserID(decoded.UserID, user.ID) {
		return false
	}

	s.mergeUser(decoded)
	if decoded.Prices != nil && *decoded.Prices != (Prices{}) {
		prices := decoded.Prices.withDefaults(s.defaults)
		s.mu.Lock()
		s.prices = prices
		s.pricesLoadedAt = s.now()
		s.mu.Unlock()
		s.log.Info("Prices updated by bot", "three_months", prices.ThreeMonths, "six_months", prices.SixMonths, "twelve_months", prices.TwelveMonths)
	}

	return true
}

// Prices returns the prices currently shown.
func (s *Store) Prices() Prices {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prices
}

// PricesLoadedAt is zero until prices were received from the backend.
func (s *Store) PricesLoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pricesLoadedAt
}

func (s *Store) User() UserData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Tiers lays out the subscription cards for the current prices.
func (s *Store) Tiers() []Tier {
	return BuildTiers(s.Prices())
}

// SelectTier remembers the tier the user picked.
func (s *Store) SelectTier(period Period) (Tier, error) {
	for _, tier := range s.Tiers() {
		if tier.Period != period {
			continue
		}

		s.mu.Lock()
		selected := tier
		s.selected = &selected
		s.mu.Unlock()
		return tier, nil
	}

	return Tier{}, fmt.Errorf("unknown subscription period %q", period)
}

// Selected returns the tier picked by SelectTier.
func (s *Store) Selected() (Tier, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return Tier{}, false
	}
	return *s.selected, true
}

// NewOrder opens an order for the selected tier with a random id in
// [1000, 9999].
func (s *Store) NewOrder(method Method) (Order, error) {
	method, err := ParseMethod(string(method))
	if err != nil {
		return Order{}, err
	}

	tier, ok := s.Selected()
	if !ok {
		return Order{}, ErrNoTierSelected
	}

	return Order{ID: minOrderID + s.intn(orderIDSpan), Tier: tier, Method: method}, nil
}

// CryptoInvoice issues a CryptoBot invoice for order and remembers it for
// CheckCryptoPayment.
func (s *Store) CryptoInvoice(order Order) CryptoInvoice {
	id := "invoice_" + strconv.FormatInt(s.now().UnixMilli(), 10)
	invoice := CryptoInvoice{
		ID:         id,
		URL:        cryptoBotInvoiceURL + id,
		AmountUSDT: usdtAmount(order.Amount(), s.cfg.USDTRate),
	}

	s.mu.Lock()
	s.invoice = &invoice
	s.mu.Unlock()

	return invoice
}

// Checkout opens an order and resolves what the payment page shows for
// method.
func (s *Store) Checkout(method Method) (Checkout, error) {
	order, err := s.NewOrder(method)
	if err != nil {
		return Checkout{}, err
	}
	checkout := Checkout{Order: order}

	switch order.Method {
	case MethodYooMoney:
		if strings.TrimSpace(s.cfg.YooMoneyWallet) == "" {
			return Checkout{}, fmt.Errorf("%w: yoomoney wallet", ErrRequisitesMissing)
		}
		checkout.Requisites = Requisites{Wallet: s.cfg.YooMoneyWallet}
	case MethodSBP:
		if strings.TrimSpace(s.cfg.SBPPhone) == "" {
			return Checkout{}, fmt.Errorf("%w: sbp phone", ErrRequisitesMissing)
		}
		checkout.Requisites = Requisites{Phone: s.cfg.SBPPhone, Receiver: s.cfg.SBPReceiver}
	case MethodCryptoBot:
		invoice := s.CryptoInvoice(order)
		checkout.Invoice = &invoice
		checkout.PayURL = invoice.URL
	case MethodCloudTips:
		checkout.PayURL = CloudTipsURL(order.Amount())
	}

	s.log.Info("Checkout opened", "order_id", order.ID, "method", order.Method, "period", order.Tier.Period, "amount", order.Amount())
	return checkout, nil
}

// SubmitScreenshot relays a manual-transfer screenshot for review.
func (s *Store) SubmitScreenshot(ctx context.Context, order Order, shot Screenshot) error {
	if !order.Method.TakesScreenshot() {
		return fmt.Errorf("%w: %s", ErrScreenshotMethod, order.Method)
	}
	if err := shot.Validate(); err != nil {
		s.notifier.Notify(LevelError, err.Error())
		return err
	}

	fields := map[string]any{
		"payment_method":    string(order.Method),
		"subscription_type": string(order.Tier.Period),
		"amount":            order.Amount(),
		"order_id":          order.ID,
		"screenshot":        shot.DataURL(),
		"screenshot_name":   shot.Name,
	}
	if err := s.backend.SendWebAppData(ctx, bridge.RequestPaymentScreenshot, fields, ""); err != nil {
		s.notifier.Notify(LevelError, "Sending failed. Please try again.")
		return fmt.Errorf("submit screenshot: %w", err)
	}

	s.log.Info("Payment screenshot sent", "order_id", order.ID, "method", order.Method, "screenshot", shot.Name, "size", FormatFileSize(int64(len(shot.Data))))
	s.notifier.Notify(LevelSuccess, "Screenshot sent for review! Please wait for confirmation.")
	return nil
}

// CheckCryptoPayment asks the backend to check an invoice. An empty
// invoiceID checks the invoice of the last crypto checkout.
func (s *Store) CheckCryptoPayment(ctx context.Context, invoiceID string) error {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		s.mu.RLock()
		if s.invoice != nil {
			invoiceID = s.invoice.ID
		}
		s.mu.RUnlock()
	}
	if invoiceID == "" {
		s.notifier.Notify(LevelError, "Invoice not found")
		return ErrNoInvoice
	}

	fields := map[string]any{"invoice_id": invoiceID}
	if err := s.backend.SendWebAppData(ctx, bridge.RequestCheckCryptoPayment, fields, ""); err != nil {
		return fmt.Errorf("check crypto payment: %w", err)
	}

	s.notifier.Notify(LevelInfo, "Checking payment status...")
	return nil
}

// ReferralLink is the bot deep link for the user's referral code.
func (s *Store) ReferralLink() string {
	code := s.User().ReferralCode
	if code == "" {
		code = "REF" + strconv.FormatInt(s.now().UnixMilli(), 10)
	}
	return ReferralLink(s.cfg.BotUsername, code)
}

// ShareReferralURL is the Telegram share link for ReferralLink.
func (s *Store) ShareReferralURL() string {
	return ShareURL(s.ReferralLink(), shareText)
}

func (s *Store) publishEvent(ctx context.Context, event bus.Event) {
	if s.bus == nil {
		return
	}
	if user, ok := s.users.User(); ok {
		event.UserID = user.ID
	}
	_ = s.bus.PublishEvent(context.WithoutCancel(ctx), event)
}
