package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teeprintlabs/teeprint-backend/pkg/config"
	"github.com/teeprintlabs/teeprint-backend/pkg/logger"
)

var (
	errBaseURLRequired = errors.New("gateway base url is required")
	errKeyIDRequired   = errors.New("gateway key id is required")
	errSecretRequired  = errors.New("gateway secret is required")
)

// Client talks to the external payment gateway over its REST API. The gateway
// owns the hosted payment flow; this client only creates intents and verifies
// the callback signature.
type Client struct {
	httpClient *http.Client
	baseURL    string
	keyID      string
	secret     string
}

// Intent is a gateway-side payment intent created for one order.
type Intent struct {
	GatewayOrderID string          `json:"id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Receipt        string          `json:"receipt"`
	Status         string          `json:"status"`
}

// CreateIntentParams carries the order figures sent to the gateway.
type CreateIntentParams struct {
	Amount   decimal.Decimal
	Currency string
	Receipt  string
}

// NewClient validates the configured credentials and returns a gateway client.
func NewClient(ctx context.Context, cfg config.GatewayConfig, logg *logger.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errKeyIDRequired
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errSecretRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if logg != nil {
		logg.Info(ctx, "payment gateway client initialized")
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		keyID:      keyID,
		secret:     secret,
	}, nil
}

// CreateIntent registers a payment intent with the gateway and returns the
// gateway-side order id the hosted flow will reference.
func (c *Client) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	if params.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("intent amount must be positive, got %s", params.Amount)
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "USD"
	}

	payload, err := json.Marshal(map[string]any{
		"amount":   params.Amount.StringFixed(2),
		"currency": currency,
		"receipt":  params.Receipt,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding intent payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/intents", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building intent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling gateway: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var intent Intent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, fmt.Errorf("decoding gateway response: %w", err)
	}
	if intent.GatewayOrderID == "" {
		return nil, errors.New("gateway response missing order id")
	}

	return &intent, nil
}

// VerifySignature recomputes the HMAC-SHA256 over "gatewayOrderID|paymentID"
// and compares it to the supplied signature in constant time.
func (c *Client) VerifySignature(gatewayOrderID, paymentID, signature string) bool {
	if gatewayOrderID == "" || paymentID == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// Sign produces the signature the gateway would send for the given pair.
// Exposed for tests and local tooling.
func Sign(secret, gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
