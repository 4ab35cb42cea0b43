// handler.go provides the HTTP REST API of the price server.
//
// Read endpoints are public. Admin endpoints require a bearer token that maps
// to a principal address; the pricing core authorizes the mapped address
// against its admin/guardian roles, so the HTTP layer never decides who may
// do what.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/citrus-finance/citrus-oracle/internal/domain/entity"
	"github.com/citrus-finance/citrus-oracle/internal/ports/inbound"
)

// Handler implements HTTP handlers for the price API.
type Handler struct {
	prices     inbound.PriceService
	admin      inbound.AdminService
	principals Principals
	logger     *slog.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(prices inbound.PriceService, admin inbound.AdminService, principals Principals, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if principals == nil {
		principals = make(Principals)
	}
	return &Handler{
		prices:     prices,
		admin:      admin,
		principals: principals,
		logger:     logger.With("component", "http-handler"),
	}
}

// RegisterRoutes registers the HTTP routes with the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/price/{asset}", h.Price)
	mux.HandleFunc("GET /v1/underlying-price/{market}", h.UnderlyingPrice)
	mux.HandleFunc("GET /v1/base-currency", h.BaseCurrency)

	mux.HandleFunc("POST /v1/admin/sources", h.SetSources)
	mux.HandleFunc("DELETE /v1/admin/sources", h.ClearSources)
	mux.HandleFunc("PUT /v1/admin/default-source", h.SetDefaultSource)
	mux.HandleFunc("PUT /v1/admin/feeds", h.SetFeeds)
	mux.HandleFunc("PUT /v1/admin/roles/{role}", h.SetRole)
}

// Price returns the 1e18-scaled price of an asset in the base currency.
func (h *Handler) Price(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.pathAddress(w, r, "asset")
	if !ok {
		return
	}

	price, err := h.prices.Price(r.Context(), asset)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"asset": asset.Hex(),
		"price": price.String(),
	})
}

// UnderlyingPrice returns the price of a market's underlying asset, rescaled
// by the underlying's decimals.
func (h *Handler) UnderlyingPrice(w http.ResponseWriter, r *http.Request) {
	market, ok := h.pathAddress(w, r, "market")
	if !ok {
		return
	}

	price, err := h.prices.UnderlyingPrice(r.Context(), market)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"market": market.Hex(),
		"price":  price.String(),
	})
}

// BaseCurrency returns the asset prices are denominated in.
func (h *Handler) BaseCurrency(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{
		"baseCurrency": h.prices.BaseCurrency().Hex(),
	})
}

type setSourcesRequest struct {
	Assets  []string `json:"assets"`
	Sources []string `json:"sources"`
}

// SetSources routes each asset to the correspondingly named source.
func (h *Handler) SetSources(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req setSourcesRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	assets, ok := h.parseAddresses(w, req.Assets)
	if !ok {
		return
	}

	if err := h.admin.SetSources(r.Context(), caller, assets, req.Sources); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type clearSourcesRequest struct {
	Assets []string `json:"assets"`
}

// ClearSources removes the routing entries for the given assets.
func (h *Handler) ClearSources(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req clearSourcesRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	assets, ok := h.parseAddresses(w, req.Assets)
	if !ok {
		return
	}

	if err := h.admin.ClearSources(r.Context(), caller, assets); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type setDefaultSourceRequest struct {
	Source    string `json:"source"`
	CallFirst bool   `json:"callFirst"`
}

// SetDefaultSource installs the named source as the fallback.
func (h *Handler) SetDefaultSource(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req setDefaultSourceRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	if err := h.admin.SetDefaultSource(r.Context(), caller, req.Source, req.CallFirst); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type setFeedsRequest struct {
	Source        string   `json:"source"`
	Assets        []string `json:"assets"`
	Feeds         []string `json:"feeds"`
	QuoteCurrency string   `json:"quoteCurrency"`
}

// SetFeeds assigns aggregator feeds inside the named feed-backed source.
func (h *Handler) SetFeeds(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req setFeedsRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	assets, ok := h.parseAddresses(w, req.Assets)
	if !ok {
		return
	}
	feeds, ok := h.parseAddresses(w, req.Feeds)
	if !ok {
		return
	}
	if !common.IsHexAddress(req.QuoteCurrency) {
		h.respondError(w, http.StatusBadRequest, "invalid quote currency address")
		return
	}

	err := h.admin.SetFeeds(r.Context(), caller, req.Source, assets, feeds, common.HexToAddress(req.QuoteCurrency))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type setRoleRequest struct {
	Holder string `json:"holder"`
}

// SetRole hands the admin or guardian role to a new principal.
func (h *Handler) SetRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req setRoleRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if !common.IsHexAddress(req.Holder) {
		h.respondError(w, http.StatusBadRequest, "invalid holder address")
		return
	}
	holder := common.HexToAddress(req.Holder)

	var err error
	switch role := r.PathValue("role"); role {
	case "admin":
		err = h.admin.SetAdmin(r.Context(), caller, holder)
	case "guardian":
		err = h.admin.SetGuardian(r.Context(), caller, holder)
	default:
		h.respondError(w, http.StatusBadRequest, "unknown role: "+role)
		return
	}
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authenticate resolves the caller principal from the bearer token, writing
// a 401 when the token is missing or unknown.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, ok := h.principals.principal(r)
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "missing or unknown bearer token")
		return common.Address{}, false
	}
	return caller, true
}

func (h *Handler) pathAddress(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	raw := r.PathValue(name)
	if !common.IsHexAddress(raw) {
		h.respondError(w, http.StatusBadRequest, "invalid "+name+" address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (h *Handler) parseAddresses(w http.ResponseWriter, raw []string) ([]common.Address, bool) {
	addrs := make([]common.Address, 0, len(raw))
	for _, s := range raw {
		if !common.IsHexAddress(s) {
			h.respondError(w, http.StatusBadRequest, "invalid address: "+s)
			return nil, false
		}
		addrs = append(addrs, common.HexToAddress(s))
	}
	return addrs, true
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// respondServiceError maps the pricing core's error taxonomy onto HTTP
// status codes. Feed faults surface as 502 because the upstream oracle, not
// this service, produced the bad data.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrUnauthorized):
		h.respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, entity.ErrInvalidArgument):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, entity.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, entity.ErrStalePrice),
		errors.Is(err, entity.ErrIncompleteRound),
		errors.Is(err, entity.ErrInvalidPrice):
		h.respondError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
