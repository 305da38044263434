package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/product-estimator/estimator/internal/coordinator"
	"github.com/product-estimator/estimator/internal/estimate"
	"github.com/product-estimator/estimator/internal/gateway"
	"github.com/product-estimator/estimator/internal/policy"
	"github.com/product-estimator/estimator/internal/view"
)

type Logger interface {
	Printf(format string, args ...any)
}

// Catalog serves the read-only product panels of a room.
type Catalog interface {
	GetProductUpgrades(ctx context.Context, req gateway.UpgradesRequest) (gateway.UpgradesResponse, error)
	GetSimilarProducts(ctx context.Context, productID string, roomArea float64) (gateway.SimilarProductsResponse, error)
}

type ServerConfig struct {
	// AdminSecret signs bearer tokens for /v1/admin routes. Admin routes
	// are disabled when it is empty.
	AdminSecret     string
	RateLimitMax    int
	RateLimitWindow time.Duration
	MaxBodyBytes    int64
	DebounceWindow  time.Duration

	// Events serves /v1/events. Metrics serves /metrics.
	Events  http.Handler
	Metrics http.Handler
	Loading *view.LoadingIndicator

	// Catalog enables the upgrades and similar-products routes.
	Catalog Catalog

	// MirrorDepth reports queued mirror tasks for the admin status route.
	MirrorDepth func() int
	Logger      Logger
}

type Server struct {
	coord       *coordinator.Coordinator
	reconciler  *view.Reconciler
	resolver    *policy.Resolver
	debouncer   *view.Debouncer
	loading     *view.LoadingIndicator
	cfg         ServerConfig
	rateLimiter *rateLimiter
	modalMu     sync.Mutex
	modalOpen   bool
}

type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]rateEntry
}

type rateEntry struct {
	count   int
	resetAt time.Time
}

func NewServer(coord *coordinator.Coordinator, reconciler *view.Reconciler) *Server {
	return NewServerWithConfig(coord, reconciler, ServerConfig{})
}

func NewServerWithConfig(coord *coordinator.Coordinator, reconciler *view.Reconciler, cfg ServerConfig) *Server {
	if cfg.RateLimitMax < 0 {
		cfg.RateLimitMax = 0
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	var limiter *rateLimiter
	if cfg.RateLimitMax > 0 {
		limiter = &rateLimiter{
			window:  cfg.RateLimitWindow,
			max:     cfg.RateLimitMax,
			entries: map[string]rateEntry{},
		}
	}
	loading := cfg.Loading
	if loading == nil {
		loading = view.NewLoadingIndicator(view.LoadingOptions{Logger: cfg.Logger})
	}
	return &Server{
		coord:       coord,
		reconciler:  reconciler,
		resolver:    policy.NewResolver(coord),
		debouncer:   view.NewDebouncer(cfg.DebounceWindow),
		loading:     loading,
		cfg:         cfg,
		rateLimiter: limiter,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	case r.URL.Path == "/" && r.Method == http.MethodGet:
		s.handlePage(w, r)
		return
	case r.URL.Path == "/metrics" && r.Method == http.MethodGet && s.cfg.Metrics != nil:
		s.cfg.Metrics.ServeHTTP(w, r)
		return
	case r.URL.Path == "/v1/events" && r.Method == http.MethodGet && s.cfg.Events != nil:
		s.cfg.Events.ServeHTTP(w, r)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "v1" {
		writeError(w, http.StatusNotFound, "not_found", "route not found", getCorrelationID(r))
		return
	}
	if parts[1] == "admin" {
		s.handleAdmin(w, r, parts)
		return
	}

	correlationID := getCorrelationID(r)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	w.Header().Set("X-Correlation-Id", correlationID)

	if r.Method != http.MethodGet && s.rateLimiter != nil {
		if !s.rateLimiter.allow(clientKey(r), time.Now().UTC()) {
			retryAfter := int(math.Ceil(s.rateLimiter.window.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded", correlationID)
			return
		}
	}

	n := len(parts)
	switch {
	case n == 2 && parts[1] == "estimates" && r.Method == http.MethodGet:
		s.handleListEstimates(w, r, correlationID)
	case n == 2 && parts[1] == "estimates" && r.Method == http.MethodPost:
		s.handleAddEstimate(w, r, correlationID)
	case n == 3 && parts[1] == "estimates" && r.Method == http.MethodGet:
		s.handleGetEstimate(w, r, parts[2], correlationID)
	case n == 3 && parts[1] == "estimates" && r.Method == http.MethodDelete:
		s.handleRemoveEstimate(w, r, parts[2], correlationID)
	case n == 4 && parts[1] == "estimates" && (parts[3] == "expand" || parts[3] == "collapse") && r.Method == http.MethodPost:
		s.handleAccordion(w, parts[2], "", parts[3] == "expand", correlationID)
	case n == 4 && parts[1] == "estimates" && parts[3] == "rooms" && r.Method == http.MethodPost:
		s.handleAddRoom(w, r, parts[2], correlationID)
	case n == 5 && parts[1] == "estimates" && parts[3] == "rooms" && r.Method == http.MethodDelete:
		s.handleRemoveRoom(w, r, parts[2], parts[4], correlationID)
	case n == 6 && parts[1] == "estimates" && parts[3] == "rooms" && (parts[5] == "expand" || parts[5] == "collapse") && r.Method == http.MethodPost:
		s.handleAccordion(w, parts[2], parts[4], parts[5] == "expand", correlationID)
	case n == 6 && parts[1] == "estimates" && parts[3] == "rooms" && parts[5] == "products" && r.Method == http.MethodPost:
		s.handleAddProduct(w, r, parts[2], parts[4], correlationID)
	case n == 7 && parts[1] == "estimates" && parts[3] == "rooms" && parts[5] == "products" && r.Method == http.MethodPut:
		s.handleReplaceProduct(w, r, parts[2], parts[4], parts[6], correlationID)
	case n == 7 && parts[1] == "estimates" && parts[3] == "rooms" && parts[5] == "products" && r.Method == http.MethodDelete:
		s.handleRemoveProduct(w, r, parts[2], parts[4], parts[6], correlationID)
	case n == 8 && parts[1] == "estimates" && parts[3] == "rooms" && parts[5] == "products" && parts[7] == "upgrades" && r.Method == http.MethodGet:
		s.handleUpgrades(w, r, parts[2], parts[4], parts[6], correlationID)
	case n == 8 && parts[1] == "estimates" && parts[3] == "rooms" && parts[5] == "products" && parts[7] == "similar" && r.Method == http.MethodGet:
		s.handleSimilarProducts(w, r, parts[2], parts[4], parts[6], correlationID)
	case n == 2 && parts[1] == "customer-details":
		s.handleCustomerDetails(w, r, correlationID)
	case n == 3 && parts[1] == "modal" && parts[2] == "open" && r.Method == http.MethodPost:
		s.handleModal(w, true, correlationID)
	case n == 3 && parts[1] == "modal" && parts[2] == "close" && r.Method == http.MethodPost:
		s.handleModal(w, false, correlationID)
	case n == 3 && parts[1] == "conflicts" && parts[2] == "resolve" && r.Method == http.MethodPost:
		s.handleResolveConflict(w, r, correlationID)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
	}
}

func (s *Server) handleListEstimates(w http.ResponseWriter, r *http.Request, correlationID string) {
	doc := s.reconciler.Document()
	if !doc.Mounted(view.EstimatesRegion) {
		if err := s.reconciler.RenderAll(); err != nil {
			writeError(w, http.StatusInternalServerError, "render_failed", err.Error(), correlationID)
			return
		}
	}
	if r.URL.Query().Get("format") == "regions" || strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, http.StatusOK, map[string]any{
			"regions":       doc.Regions(),
			"correlationId": correlationID,
		})
		return
	}
	writeHTML(w, http.StatusOK, doc.Compose(view.EstimatesRegion))
}

func (s *Server) handleGetEstimate(w http.ResponseWriter, r *http.Request, estimateID, correlationID string) {
	e, ok := s.coord.Store().GetEstimate(estimateID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "estimate not found", correlationID)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleAddEstimate(w http.ResponseWriter, r *http.Request, correlationID string) {
	var req coordinator.AddEstimateRequest
	if !s.decodeJSONBody(w, r, correlationID, &req) {
		return
	}
	var result coordinator.EstimateResult
	err := s.loading.Track(func() error {
		var err error
		result, err = s.coord.AddEstimate(r.Context(), req)
		return err
	})
	if err != nil {
		writeDecision(w, err, correlationID)
		return
	}
	s.reconciler.Document().Expand(result.EstimateID, "")
	s.render(s.reconciler.RenderEstimate(result.EstimateID))
	writeResult(w, http.StatusCreated, result, correlationID)
}

func (s *Server) handleRemoveEstimate(w http.ResponseWriter, r *http.Request, estimateID, correlationID string) {
	var result coordinator.EstimateResult
	err := s.loading.Track(func() error {
		var err error
		result, err = s.coord.RemoveEstimate(r.Context(), estimateID)
		return err
	})
	if err != nil {
		if errors.Is(err, coordinator.ErrNotFound) {
			s.render(s.reconciler.RenderEstimate(estimateID))
		}
		writeDecision(w, err, correlationID)
		return
	}
	s.render(s.reconciler.RenderEstimate(estimateID))
	writeResult(w, http.StatusOK, result, correlationID)
}

func (s *Server) handleAddRoom(w http.ResponseWriter, r *http.Request, estimateID, correlationID string) {
	var req coordinator.AddRoomRequest
	if !s.decodeJSONBody(w, r, correlationID, &req) {
		return
	}
	req.EstimateID = estimateID
	var result coordinator.RoomResult
	err := s.loading.Track(func() error {
		var err error
		result, err = s.coord.AddRoom(r.Context(), req)
		return err
	})
	if result.RoomID != "" {
		// The room shell stands even when its pending product was refused.
		s.reconciler.Document().Expand(estimateID, "")
		s.reconciler.Document().Expand(estimateID, result.RoomID)
		s.render(s.reconciler.RenderEstimate(estimateID))
	}
	if err != nil {
		writeDecisionWith(w, err, correlationID, result)
		return
	}
	writeResult(w, http.StatusCreated, result, correlationID)
}

func (s *Server) handleRemoveRoom(w http.ResponseWriter, r *http.Request, estimateID, roomID, correlationID string) {
	var result coordinator.EstimateResult
	err := s.loading.Track(func() error {
		var err error
		result, err = s.coord.RemoveRoom(r.Context(), estimateID, roomID)
		return err
	})
	if err != nil {
		writeDecision(w, err, correlationID)
		return
	}
	s.render(s.reconciler.RenderEstimate(estimateID))
	writeResult(w, http.StatusOK, result, correlationID)
}

type addProductBody struct {
	ProductID   string `json:"product_id"`
	VariationID string `json:"variation_id,omitempty"`
}

func (s *Server) handleAddProduct(w http.ResponseWriter, r *http.Request, estimateID, roomID, correlationID string) {
	var body addProductBody
	if !s.decodeJSONBody(w, r, correlationID, &body) {
		return
	}
	var result coordinator.ProductResult
	err := s.loading.Track(func() error {
		var err error
		result, err = s.coord.RequestAddProduct(r.Context(), coordinator.AddProductRequest{
			EstimateID:  estimateID,
			RoomID:      roomID,
			ProductID:   body.ProductID,
			VariationID: body.VariationID,
		})
		return err
	})
	if err != nil {
		writeDecision(w, err, correlationID)
		return
	}
	s.productChanged(result)
	writeResult(w, http.StatusCreated, result, correlationID)
}

type replaceProductBody struct {
	NewProductID    string `json:"new_product_id"`
	ParentProductID string `json:"parent_product_id,omitempty"`
	VariationID     string `json:"variation_id,omitempty"`
}

func (s *Server) handleReplaceProduct(w http.ResponseWriter, r *http.Request, estimateID, roomID, productID, correlationID string) {
	var body replaceProductBody
	if !s.decodeJSONBody(w, r, correlationID, &body) {
		return
	}
	var result coordinator.ProductResult
	err := s.loading.Track(func() error {
		var err error
		result, err = s.coord.RequestReplaceProduct(r.Context(), coordinator.ReplaceProductRequest{
			EstimateID:      estimateID,
			RoomID:          roomID,
			OldProductID:    productID,
			NewProductID:    body.NewProductID,
			ParentProductID: body.ParentProductID,
			VariationID:     body.VariationID,
		})
		return err
	})
	if err != nil {
		writeDecision(w, err, correlationID)
		return
	}
	s.productChanged(result)
	writeResult(w, http.StatusOK, result, correlationID)
}

func (s *Server) handleRemoveProduct(w http.ResponseWriter, r *http.Request, estimateID, roomID, productID, correlationID string) {
	var result coordinator.ProductResult
	err := s.loading.Track(func() error {
		var err error
		result, err = s.coord.RemoveProductFromRoom(r.Context(), estimateID, roomID, productID)
		return err
	})
	if err != nil {
		writeDecision(w, err, correlationID)
		return
	}
	s.productChanged(result)
	writeResult(w, http.StatusOK, result, correlationID)
}

func (s *Server) handleUpgrades(w http.ResponseWriter, r *http.Request, estimateID, roomID, productID, correlationID string) {
	room, ok := s.catalogRoom(w, estimateID, roomID, correlationID)
	if !ok {
		return
	}
	resp, err := s.cfg.Catalog.GetProductUpgrades(r.Context(), gateway.UpgradesRequest{
		ProductID:   productID,
		EstimateID:  estimateID,
		RoomID:      roomID,
		RoomArea:    room.Area(),
		UpgradeType: r.URL.Query().Get("type"),
	})
	if err != nil {
		writeDecision(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"upgrades":      resp.Upgrades,
		"fallback":      resp.IsFallback,
		"correlationId": correlationID,
	})
}

func (s *Server) handleSimilarProducts(w http.ResponseWriter, r *http.Request, estimateID, roomID, productID, correlationID string) {
	room, ok := s.catalogRoom(w, estimateID, roomID, correlationID)
	if !ok {
		return
	}
	resp, err := s.cfg.Catalog.GetSimilarProducts(r.Context(), productID, room.Area())
	if err != nil {
		writeDecision(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"products":      resp.Products,
		"fallback":      resp.IsFallback,
		"correlationId": correlationID,
	})
}

func (s *Server) catalogRoom(w http.ResponseWriter, estimateID, roomID, correlationID string) (*estimate.Room, bool) {
	if s.cfg.Catalog == nil {
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
		return nil, false
	}
	room, ok := s.coord.Store().GetRoom(estimateID, roomID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "room not found", correlationID)
		return nil, false
	}
	return room, true
}

func (s *Server) handleAccordion(w http.ResponseWriter, estimateID, roomID string, expand bool, correlationID string) {
	if _, ok := s.coord.Store().GetEstimate(estimateID); !ok {
		writeError(w, http.StatusNotFound, "not_found", "estimate not found", correlationID)
		return
	}
	if roomID != "" {
		if _, ok := s.coord.Store().GetRoom(estimateID, roomID); !ok {
			writeError(w, http.StatusNotFound, "not_found", "room not found", correlationID)
			return
		}
	}
	var err error
	if expand {
		err = s.reconciler.Expand(estimateID, roomID)
	} else {
		err = s.reconciler.Collapse(estimateID, roomID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "render_failed", err.Error(), correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"expanded":      s.reconciler.Document().Expanded(estimateID, roomID),
		"correlationId": correlationID,
	})
}

func (s *Server) handleCustomerDetails(w http.ResponseWriter, r *http.Request, correlationID string) {
	store := s.coord.Store()
	switch r.Method {
	case http.MethodGet:
		details, ok := store.GetCustomerDetails()
		if !ok {
			writeError(w, http.StatusNotFound, "not_found", "no customer details stored", correlationID)
			return
		}
		writeJSON(w, http.StatusOK, details)
	case http.MethodPut:
		var details estimate.CustomerDetails
		if !s.decodeJSONBody(w, r, correlationID, &details) {
			return
		}
		if err := s.coord.UpdateCustomerDetails(r.Context(), details); err != nil {
			writeDecision(w, err, correlationID)
			return
		}
		stored, _ := store.GetCustomerDetails()
		writeJSON(w, http.StatusOK, stored)
	case http.MethodDelete:
		s.coord.ClearCustomerDetails(r.Context())
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", correlationID)
	}
}

// handleModal opens or closes the estimator modal. Repeated open or close
// requests inside the debounce window are acknowledged and ignored.
func (s *Server) handleModal(w http.ResponseWriter, open bool, correlationID string) {
	key := "modal_close"
	if open {
		key = "modal_open"
	}
	if !s.debouncer.Allow(key) {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"debounced":     true,
			"open":          s.isModalOpen(),
			"correlationId": correlationID,
		})
		return
	}
	s.modalMu.Lock()
	s.modalOpen = open
	s.modalMu.Unlock()

	if !open {
		s.loading.ForceHide("modal closed")
		writeJSON(w, http.StatusOK, map[string]any{"open": false, "correlationId": correlationID})
		return
	}
	if err := s.reconciler.RenderAll(); err != nil {
		writeError(w, http.StatusInternalServerError, "render_failed", err.Error(), correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"open":          true,
		"html":          s.reconciler.Document().Compose(view.EstimatesRegion),
		"correlationId": correlationID,
	})
}

func (s *Server) isModalOpen() bool {
	s.modalMu.Lock()
	defer s.modalMu.Unlock()
	return s.modalOpen
}

type conflictBody struct {
	EstimateID        string        `json:"estimate_id"`
	RoomID            string        `json:"room_id"`
	ExistingProductID string        `json:"existing_product_id"`
	NewProductID      string        `json:"new_product_id"`
	Choice            policy.Choice `json:"choice"`
}

// handleResolveConflict rebuilds the conflict decision from the request so
// only the choices that decision offers are accepted.
func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request, correlationID string) {
	var body conflictBody
	if !s.decodeJSONBody(w, r, correlationID, &body) {
		return
	}
	decision := policy.Decide(&coordinator.PrimaryConflictError{
		EstimateID:        body.EstimateID,
		RoomID:            body.RoomID,
		ExistingProductID: body.ExistingProductID,
		NewProductID:      body.NewProductID,
	})
	var resolution policy.Resolution
	err := s.loading.Track(func() error {
		var err error
		resolution, err = s.resolver.Resolve(r.Context(), decision, body.Choice)
		return err
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_choice", err.Error(), correlationID)
		return
	}
	if resolution.Result != nil {
		s.productChanged(*resolution.Result)
	}
	status := http.StatusOK
	if resolution.Followup != nil {
		s.render(s.reconciler.RenderEstimate(body.EstimateID))
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]any{
		"resolution":    resolution,
		"correlationId": correlationID,
	})
}

func (s *Server) productChanged(result coordinator.ProductResult) {
	var primary *estimate.Product
	if result.PrimaryCategoryProductID != nil {
		if room, ok := s.coord.Store().GetRoom(result.EstimateID, result.RoomID); ok {
			if p, found := room.PrimaryProduct(); found {
				primary = p
			}
		}
	}
	s.render(s.reconciler.ProductChanged(result.EstimateID, result.RoomID, result.RoomTotals, result.EstimateTotals, primary))
}

func (s *Server) render(err error) {
	if err != nil {
		s.logf("render failed: %v", err)
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.cfg.Logger == nil {
		return
	}
	s.cfg.Logger.Printf(format, args...)
}

// statusFor maps a coordinator error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	var expected *gateway.ExpectedOutcomeError
	switch {
	case errors.Is(err, coordinator.ErrDuplicate):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, coordinator.ErrPrimaryConflict):
		return http.StatusConflict, "primary_conflict"
	case errors.As(err, &expected):
		return http.StatusConflict, expected.Kind
	case errors.Is(err, coordinator.ErrValidation):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, coordinator.ErrVariationRequired):
		return http.StatusConflict, "variation_required"
	case errors.Is(err, coordinator.ErrVariationCancelled):
		return http.StatusConflict, "variation_cancelled"
	case errors.Is(err, coordinator.ErrBusy):
		return http.StatusTooManyRequests, "busy"
	case errors.Is(err, coordinator.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, coordinator.ErrCriticalData):
		return http.StatusBadGateway, "critical_data"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeDecision(w http.ResponseWriter, err error, correlationID string) {
	writeDecisionWith(w, err, correlationID, nil)
}

func writeDecisionWith(w http.ResponseWriter, err error, correlationID string, result any) {
	status, code := statusFor(err)
	body := map[string]any{
		"code":          code,
		"message":       err.Error(),
		"correlationId": correlationID,
		"decision":      policy.Decide(err),
	}
	if result != nil {
		body["result"] = result
	}
	writeJSON(w, status, body)
}

func writeResult(w http.ResponseWriter, status int, result any, correlationID string) {
	writeJSON(w, status, map[string]any{
		"result":        result,
		"decision":      policy.Decide(nil),
		"correlationId": correlationID,
	})
}

func getCorrelationID(r *http.Request) string {
	return r.Header.Get("X-Correlation-Id")
}

func clientKey(r *http.Request) string {
	if fwd := strings.TrimSpace(strings.Split(r.Header.Get("X-Forwarded-For"), ",")[0]); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request, correlationID string) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit", correlationID)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body", correlationID)
		return nil, false
	}
	return body, true
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, correlationID string, dst any) bool {
	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body", correlationID)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeHTML(w http.ResponseWriter, status int, f view.Fragment) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprint(w, string(f))
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}

func (r *rateLimiter) allow(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || now.After(entry.resetAt) {
		r.entries[key] = rateEntry{
			count:   1,
			resetAt: now.Add(r.window),
		}
		return true
	}
	if entry.count >= r.max {
		return false
	}
	entry.count++
	r.entries[key] = entry
	return true
}
