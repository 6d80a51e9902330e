package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maltedev/priceguess-ingest/internal/models"
	"github.com/maltedev/priceguess-ingest/internal/scraper"
	"github.com/maltedev/priceguess-ingest/internal/storage"
)

type Discoverer interface {
	Discover(ctx context.Context, term string) ([]string, error)
}

type AssetStore interface {
	Store(ctx context.Context, imageURL string) (models.StoredAsset, error)
}

// OutboxStats reports relay backlog for the health check.
type OutboxStats interface {
	PendingCount(ctx context.Context) (int64, error)
	DeadLetterCount(ctx context.Context) (int64, error)
}

const (
	pendingWarnThreshold     = 1000
	deadLetterErrorThreshold = 100
)

type Handlers struct {
	scraper    scraper.ProductScraper
	maxRetries int
	discoverer Discoverer
	assets     AssetStore
	outbox     OutboxStats
	validate   *validator.Validate
	logger     *slog.Logger
}

type Deps struct {
	Scraper    scraper.ProductScraper
	MaxRetries int
	// Discoverer, Assets and Outbox are optional. Their endpoints answer 503
	// when unset.
	Discoverer Discoverer
	Assets     AssetStore
	Outbox     OutboxStats
	Logger     *slog.Logger
}

func NewHandlers(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Handlers{
		scraper:    deps.Scraper,
		maxRetries: deps.MaxRetries,
		discoverer: deps.Discoverer,
		assets:     deps.Assets,
		outbox:     deps.Outbox,
		validate:   validator.New(),
		logger:     deps.Logger.With("component", "api"),
	}
}

type ScrapeRequest struct {
	URL        string `json:"url" validate:"required,url"`
	MaxRetries *int   `json:"max_retries,omitempty" validate:"omitempty,min=0,max=10"`
}

// Scrape runs the retrying scraper for one product URL. Scrape failures are
// reported in the outcome with status 200.
func (h *Handlers) Scrape(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if !h.decode(w, r, &req) {
		return
	}

	retries := h.maxRetries
	if req.MaxRetries != nil {
		retries = *req.MaxRetries
	}

	outcome := h.scraper.Scrape(r.Context(), req.URL, retries)
	if !outcome.OK() {
		h.logger.Warn("scrape failed", "url", req.URL, "reason", outcome.Reason, "attempt", outcome.Attempts)
	}

	h.respondJSON(w, http.StatusOK, outcome)
}

type DiscoverRequest struct {
	Term string `json:"term" validate:"required,max=200"`
}

type DiscoverResponse struct {
	Term string   `json:"term"`
	URLs []string `json:"urls"`
}

func (h *Handlers) Discover(w http.ResponseWriter, r *http.Request) {
	if h.discoverer == nil {
		h.respondError(w, http.StatusServiceUnavailable, "discovery is not configured")
		return
	}

	var req DiscoverRequest
	if !h.decode(w, r, &req) {
		return
	}

	term := strings.TrimSpace(req.Term)
	urls, err := h.discoverer.Discover(r.Context(), term)
	if err != nil {
		h.logger.Error("discovery failed", "term", term, "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, scraper.ErrDisallowed) {
			status = http.StatusForbidden
		}
		h.respondError(w, status, err.Error())
		return
	}
	if urls == nil {
		urls = []string{}
	}

	h.respondJSON(w, http.StatusOK, DiscoverResponse{Term: term, URLs: urls})
}

type AssetRequest struct {
	ImageURL string `json:"imageUrl" validate:"required,url"`
}

func (h *Handlers) StoreAsset(w http.ResponseWriter, r *http.Request) {
	if h.assets == nil {
		h.respondError(w, http.StatusServiceUnavailable, "asset storage is not configured")
		return
	}

	var req AssetRequest
	if !h.decode(w, r, &req) {
		return
	}

	asset, err := h.assets.Store(r.Context(), req.ImageURL)
	if err != nil {
		h.logger.Error("failed to store asset", "url", req.ImageURL, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrAssetFetch) {
			status = http.StatusBadGateway
		}
		h.respondError(w, status, err.Error())
		return
	}

	status := http.StatusOK
	if asset.Uploaded {
		status = http.StatusCreated
	}
	h.respondJSON(w, status, asset)
}

// Health reports ok unless the outbox backlog is too large.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		pending, perr := h.outbox.PendingCount(r.Context())
		deadLetter, derr := h.outbox.DeadLetterCount(r.Context())
		if err := errors.Join(perr, derr); err != nil {
			h.logger.Error("failed to read outbox counts", "error", err)
			h.respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":  "error",
				"message": "outbox unavailable",
			})
			return
		}

		health["outbox"] = map[string]int64{
			"pending":     pending,
			"dead_letter": deadLetter,
		}
		if pending > pendingWarnThreshold {
			health["status"] = "warning"
			health["message"] = "high number of pending outbox events"
		}
		if deadLetter > deadLetterErrorThreshold {
			health["status"] = "error"
			health["message"] = "high number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
