package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teeprintlabs/teeprint-backend/pkg/config"
	pkgerrors "github.com/teeprintlabs/teeprint-backend/pkg/errors"
)

// Product is the catalog view the checkout subsystem needs.
type Product struct {
	ID        uuid.UUID        `json:"id"`
	Name      string           `json:"name"`
	BasePrice decimal.Decimal  `json:"base_price"`
	SalePrice *decimal.Decimal `json:"sale_price,omitempty"`
	Active    bool             `json:"active"`
}

// EffectivePrice is the sale price when set, otherwise the base price.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice != nil && p.SalePrice.GreaterThan(decimal.Zero) {
		return *p.SalePrice
	}
	return p.BasePrice
}

// Service loads products from the catalog system.
type Service interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
}

type httpService struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPService builds a catalog client against the configured base URL.
func NewHTTPService(cfg config.CatalogConfig) (Service, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("catalog base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &httpService{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}, nil
}

// GetProduct fetches one product by id.
func (s *httpService) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	url := fmt.Sprintf("%s/v1/products/%s", s.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building catalog request")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calling catalog")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("catalog returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading catalog response")
	}

	var product Product
	if err := json.Unmarshal(body, &product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding catalog response")
	}
	return &product, nil
}
