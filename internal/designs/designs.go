package designs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teeprintlabs/teeprint-backend/pkg/config"
	pkgerrors "github.com/teeprintlabs/teeprint-backend/pkg/errors"
	"github.com/teeprintlabs/teeprint-backend/pkg/types"
)

// Service resolves a user's designs into immutable snapshots.
type Service interface {
	GetDesign(ctx context.Context, id, ownerID uuid.UUID) (*types.DesignSnapshot, error)
}

type httpService struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPService builds a designs client against the configured base URL.
func NewHTTPService(cfg config.DesignsConfig) (Service, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("designs base url is required")
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

// GetDesign fetches one design, scoped to its owner so users cannot print
// someone else's design.
func (s *httpService) GetDesign(ctx context.Context, id, ownerID uuid.UUID) (*types.DesignSnapshot, error) {
	url := fmt.Sprintf("%s/v1/designs/%s?owner_id=%s", s.baseURL, id, ownerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building designs request")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calling designs")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "design not found")
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("designs returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading designs response")
	}

	var snapshot types.DesignSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding designs response")
	}
	if snapshot.DesignID == "" {
		snapshot.DesignID = id.String()
	}
	return &snapshot, nil
}
