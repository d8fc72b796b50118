// Package dashboard exposes a session over the liveserver: REST commands
// under /api/v1 and view updates pushed to browser sockets.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"hedgedesk/internal/analysis"
	"hedgedesk/internal/auth"
	"hedgedesk/internal/core"
	"hedgedesk/internal/positions"
	"hedgedesk/internal/session"
	"hedgedesk/internal/settings"
	apperrors "hedgedesk/pkg/errors"
	apphttp "hedgedesk/pkg/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// Controller is the command surface of a session
type Controller interface {
	View() session.View
	SetSettings(ctx context.Context, v settings.Values) error
	AddLeg(ctx context.Context, req positions.AddLegRequest) (core.Leg, bool, error)
	SetAction(ctx context.Context, id string, action core.Action) error
	RemoveLeg(ctx context.Context, id string) error
	ClearAll(ctx context.Context) error
	ClearServerSelection(ctx context.Context) error
	RefreshPayoff(ctx context.Context) error
	SetPriceRange(ctx context.Context, percentage float64) error
	SetLotSize(ctx context.Context, lotSize float64) error
	RunSimulation(ctx context.Context) (analysis.SimulationResult, error)
	ClearScenario(ctx context.Context) error
}

const commandTimeout = 10 * time.Second

// API serves the control endpoints
type API struct {
	ctrl      Controller
	validator *auth.APIKeyValidator
	logger    core.ILogger
}

// NewAPI creates the control API. validator guards every /api/v1 route.
func NewAPI(ctrl Controller, validator *auth.APIKeyValidator, logger core.ILogger) *API {
	return &API{
		ctrl:      ctrl,
		validator: validator,
		logger:    logger.WithField("component", "dashboard_api"),
	}
}

// Register mounts the API on r
func (a *API) Register(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(a.validator.Middleware)

	api.HandleFunc("/view", a.handleView).Methods(http.MethodGet)
	api.HandleFunc("/settings", a.handleSettings).Methods(http.MethodPut)
	api.HandleFunc("/legs", a.handleAddLeg).Methods(http.MethodPost)
	api.HandleFunc("/legs", a.handleClearLegs).Methods(http.MethodDelete)
	api.HandleFunc("/legs/{id}", a.handleSetAction).Methods(http.MethodPatch)
	api.HandleFunc("/legs/{id}", a.handleRemoveLeg).Methods(http.MethodDelete)
	api.HandleFunc("/payoff/refresh", a.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/payoff/price-range", a.handlePriceRange).Methods(http.MethodPut)
	api.HandleFunc("/payoff/lot-size", a.handleLotSize).Methods(http.MethodPut)
	api.HandleFunc("/payoff/clear-selection", a.handleClearSelection).Methods(http.MethodPost)
	api.HandleFunc("/analysis/simulation", a.handleSimulation).Methods(http.MethodPost)
	api.HandleFunc("/analysis/clear", a.handleClearScenario).Methods(http.MethodPost)
}

type settingsRequest struct {
	Exchange string `json:"exchange"`
	Coin     string `json:"coin"`
	Expiry   string `json:"expiry"`
}

type addLegRequest struct {
	Kind       string          `json:"kind"`
	Strike     decimal.Decimal `json:"strike"`
	Symbol     string          `json:"symbol"`
	Expiry     string          `json:"expiry"`
	Underlying string          `json:"underlying"`
}

type addLegResponse struct {
	Leg   core.Leg `json:"leg"`
	Added bool     `json:"added"`
}

type actionRequest struct {
	Action string `json:"action"`
}

type priceRangeRequest struct {
	Percentage float64 `json:"percentage"`
}

type lotSizeRequest struct {
	LotSize float64 `json:"lot_size"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
}

func (a *API) handleView(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.ctrl.View())
}

func (a *API) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.command(w, r, func(ctx context.Context) error {
		return a.ctrl.SetSettings(ctx, settings.Values(req))
	})
}

func (a *API) handleAddLeg(w http.ResponseWriter, r *http.Request) {
	var req addLegRequest
	if !a.decode(w, r, &req) {
		return
	}
	kind, err := core.ParseContractKind(req.Kind)
	if err != nil || !kind.IsOption() {
		a.writeError(w, r, http.StatusBadRequest, apperrors.ErrInvalidContractKind)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	leg, added, err := a.ctrl.AddLeg(ctx, positions.AddLegRequest{
		Kind:       kind,
		Strike:     req.Strike,
		Symbol:     req.Symbol,
		Expiry:     req.Expiry,
		Underlying: req.Underlying,
	})
	if err != nil {
		a.writeError(w, r, statusFor(err), err)
		return
	}
	status := http.StatusCreated
	if !added {
		status = http.StatusOK
	}
	a.writeJSON(w, status, addLegResponse{Leg: leg, Added: added})
}

func (a *API) handleSetAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !a.decode(w, r, &req) {
		return
	}
	action, err := core.ParseAction(req.Action)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	id := mux.Vars(r)["id"]
	a.command(w, r, func(ctx context.Context) error {
		return a.ctrl.SetAction(ctx, id, action)
	})
}

func (a *API) handleRemoveLeg(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a.command(w, r, func(ctx context.Context) error {
		return a.ctrl.RemoveLeg(ctx, id)
	})
}

func (a *API) handleClearLegs(w http.ResponseWriter, r *http.Request) {
	a.command(w, r, a.ctrl.ClearAll)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	a.command(w, r, a.ctrl.RefreshPayoff)
}

func (a *API) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	a.command(w, r, a.ctrl.ClearServerSelection)
}

func (a *API) handlePriceRange(w http.ResponseWriter, r *http.Request) {
	var req priceRangeRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.command(w, r, func(ctx context.Context) error {
		return a.ctrl.SetPriceRange(ctx, req.Percentage)
	})
}

func (a *API) handleLotSize(w http.ResponseWriter, r *http.Request) {
	var req lotSizeRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.command(w, r, func(ctx context.Context) error {
		return a.ctrl.SetLotSize(ctx, req.LotSize)
	})
}

func (a *API) handleSimulation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	result, err := a.ctrl.RunSimulation(ctx)
	if err != nil {
		a.writeError(w, r, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

func (a *API) handleClearScenario(w http.ResponseWriter, r *http.Request) {
	a.command(w, r, a.ctrl.ClearScenario)
}

// command runs fn with a bounded context and answers 204 or an error
func (a *API) command(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		a.writeError(w, r, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	var apiErr *apphttp.APIError
	switch {
	case errors.Is(err, apperrors.ErrLegNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrInvalidAction),
		errors.Is(err, apperrors.ErrInvalidContractKind),
		errors.Is(err, apperrors.ErrInvalidSymbol),
		errors.Is(err, apperrors.ErrInvalidExpiry),
		errors.Is(err, apperrors.ErrUnsupportedExchange),
		errors.Is(err, apperrors.ErrUnsupportedCoin),
		errors.Is(err, apperrors.ErrMalformedMessage):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotConnected),
		errors.Is(err, session.ErrAnalysisDisabled):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	requestID := auth.RequestID(r.Context())
	if status >= http.StatusInternalServerError {
		a.logger.Error("Command failed", "path", r.URL.Path, "request_id", requestID, "error", err)
	} else {
		a.logger.Debug("Command rejected", "path", r.URL.Path, "request_id", requestID, "error", err)
	}
	a.writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: requestID})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("Failed to encode response", "error", err)
	}
}
