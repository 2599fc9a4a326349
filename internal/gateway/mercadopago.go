package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.mercadopago.com"

type MercadoPagoConfig struct {
	// BaseURL overrides the API host, for sandboxes and tests.
	BaseURL         string
	AccessToken     string
	SiteURL         string
	NotificationURL string
	Currency        string
	Timeout         time.Duration
}

type MercadoPago struct {
	cfg         MercadoPagoConfig
	preferences preference.Client
	payments    payment.Client
	log         *zap.Logger
}

func NewMercadoPago(cfg MercadoPagoConfig, log *zap.Logger) *MercadoPago {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Currency == "" {
		cfg.Currency = "COP"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &MercadoPago{cfg: cfg, log: log}
	if cfg.AccessToken == "" {
		return c
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.BaseURL != "" && cfg.BaseURL != defaultBaseURL {
		if u, err := url.Parse(cfg.BaseURL); err == nil {
			httpClient.Transport = hostRewriter{target: u, next: http.DefaultTransport}
		}
	}
	sdk, err := config.New(cfg.AccessToken, config.WithHTTPClient(httpClient))
	if err != nil {
		log.Error("mercadopago client not configured", zap.Error(err))
		return c
	}
	c.preferences = preference.NewClient(sdk)
	c.payments = payment.NewClient(sdk)
	return c
}

// hostRewriter sends SDK requests to BaseURL instead of the production host.
type hostRewriter struct {
	target *url.URL
	next   http.RoundTripper
}

func (h hostRewriter) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = h.target.Scheme
	r.URL.Host = h.target.Host
	r.Host = h.target.Host
	return h.next.RoundTrip(r)
}

func (c *MercadoPago) CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if c.preferences == nil {
		return Intent{}, ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	items := make([]preference.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		desc := it.SKU
		if desc == "" {
			desc = it.ProductID
		}
		items = append(items, preference.ItemRequest{
			ID:          it.ProductID,
			Title:       it.Title,
			Description: "SKU: " + desc,
			Quantity:    it.Quantity,
			CurrencyID:  c.cfg.Currency,
			UnitPrice:   it.UnitPrice.InexactFloat64(),
		})
	}
	order := url.QueryEscape(req.OrderID)
	body := preference.Request{
		Items: items,
		Payer: &preference.PayerRequest{Name: req.Payer.Name, Email: req.Payer.Email},
		BackURLs: &preference.BackURLsRequest{
			Success: c.cfg.SiteURL + "/checkout/success?order_id=" + order,
			Failure: c.cfg.SiteURL + "/shop/cart?error=payment_failed",
			Pending: c.cfg.SiteURL + "/checkout/pending?order_id=" + order,
		},
		AutoReturn:        "approved",
		NotificationURL:   c.cfg.NotificationURL,
		ExternalReference: req.OrderID,
		Metadata:          map[string]any{"order_id": req.OrderID, "customer_id": req.CustomerID},
	}

	start := time.Now()
	out, err := c.preferences.Create(ctx, body)
	if err != nil {
		c.log.Warn("create preference failed", zap.String("order_id", req.OrderID), zap.Duration("latency", time.Since(start)), zap.Error(err))
		return Intent{}, fmt.Errorf("%w: create preference: %v", ErrUpstream, err)
	}
	c.log.Debug("preference created", zap.String("order_id", req.OrderID), zap.String("preference_id", out.ID), zap.Duration("latency", time.Since(start)))
	if out.ID == "" {
		return Intent{}, fmt.Errorf("%w: empty preference id", ErrUpstream)
	}
	return Intent{ID: out.ID, RedirectURL: out.InitPoint, SandboxURL: out.SandboxInitPoint}, nil
}

func (c *MercadoPago) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	if c.payments == nil {
		return Payment{}, ErrNotConfigured
	}
	id, err := strconv.Atoi(paymentID)
	if err != nil {
		return Payment{}, fmt.Errorf("%w: payment id %q is not numeric", ErrUpstream, paymentID)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	out, err := c.payments.Get(ctx, id)
	if err != nil {
		c.log.Warn("get payment failed", zap.String("payment_id", paymentID), zap.Error(err))
		return Payment{}, fmt.Errorf("%w: get payment: %v", ErrUpstream, err)
	}
	return Payment{ID: strconv.Itoa(out.ID), Status: out.Status, ExternalReference: out.ExternalReference}, nil
}
