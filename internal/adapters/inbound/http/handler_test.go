package http

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/citrus-finance/citrus-oracle/internal/domain/entity"
)

var (
	usdAddr   = common.HexToAddress("0x0000000000000000000000000000000000000348")
	wbtcAddr  = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
	wethAddr  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	adminAddr = common.HexToAddress("0x00000000000000000000000000000000000000ad")
)

// mockPriceService implements inbound.PriceService with function fields.
type mockPriceService struct {
	priceFn           func(ctx context.Context, asset common.Address) (*big.Int, error)
	underlyingPriceFn func(ctx context.Context, market common.Address) (*big.Int, error)
	base              common.Address
}

func (m *mockPriceService) Price(ctx context.Context, asset common.Address) (*big.Int, error) {
	return m.priceFn(ctx, asset)
}

func (m *mockPriceService) UnderlyingPrice(ctx context.Context, market common.Address) (*big.Int, error) {
	return m.underlyingPriceFn(ctx, market)
}

func (m *mockPriceService) BaseCurrency() common.Address { return m.base }

// mockAdminService records calls and returns configured errors.
type mockAdminService struct {
	lastCaller common.Address
	err        error

	setSourcesCalls  int
	setFeedsCalls    int
	setAdminCalls    int
	setGuardianCalls int
}

func (m *mockAdminService) SetSources(_ context.Context, caller common.Address, _ []common.Address, _ []string) error {
	m.lastCaller = caller
	m.setSourcesCalls++
	return m.err
}

func (m *mockAdminService) ClearSources(_ context.Context, caller common.Address, _ []common.Address) error {
	m.lastCaller = caller
	return m.err
}

func (m *mockAdminService) SetDefaultSource(_ context.Context, caller common.Address, _ string, _ bool) error {
	m.lastCaller = caller
	return m.err
}

func (m *mockAdminService) SetFeeds(_ context.Context, caller common.Address, _ string, _, _ []common.Address, _ common.Address) error {
	m.lastCaller = caller
	m.setFeedsCalls++
	return m.err
}

func (m *mockAdminService) SetAdmin(_ context.Context, caller, _ common.Address) error {
	m.lastCaller = caller
	m.setAdminCalls++
	return m.err
}

func (m *mockAdminService) SetGuardian(_ context.Context, caller, _ common.Address) error {
	m.lastCaller = caller
	m.setGuardianCalls++
	return m.err
}

func newTestMux(prices *mockPriceService, admin *mockAdminService) *http.ServeMux {
	principals := Principals{"admin-token": adminAddr}
	handler := NewHandler(prices, admin, principals, nil)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestPriceEndpoint(t *testing.T) {
	prices := &mockPriceService{
		priceFn: func(_ context.Context, asset common.Address) (*big.Int, error) {
			if asset != wbtcAddr {
				t.Errorf("unexpected asset %s", asset.Hex())
			}
			return big.NewInt(1e18), nil
		},
		base: usdAddr,
	}
	mux := newTestMux(prices, &mockAdminService{})

	rec := doRequest(t, mux, http.MethodGet, "/v1/price/"+wbtcAddr.Hex(), "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["price"] != "1000000000000000000" {
		t.Errorf("price = %s, want 1e18", resp["price"])
	}
}

func TestPriceEndpoint_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", entity.ErrNotFound, http.StatusNotFound},
		{"invalid argument", entity.ErrInvalidArgument, http.StatusBadRequest},
		{"stale feed", fmt.Errorf("feed: %w", entity.ErrStalePrice), http.StatusBadGateway},
		{"incomplete round", entity.ErrIncompleteRound, http.StatusBadGateway},
		{"invalid price", entity.ErrInvalidPrice, http.StatusBadGateway},
		{"unexpected", fmt.Errorf("rpc connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prices := &mockPriceService{
				priceFn: func(_ context.Context, _ common.Address) (*big.Int, error) {
					return nil, tt.err
				},
			}
			mux := newTestMux(prices, &mockAdminService{})

			rec := doRequest(t, mux, http.MethodGet, "/v1/price/"+wbtcAddr.Hex(), "", "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestPriceEndpoint_RejectsBadAddress(t *testing.T) {
	mux := newTestMux(&mockPriceService{}, &mockAdminService{})

	rec := doRequest(t, mux, http.MethodGet, "/v1/price/not-an-address", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUnderlyingPriceEndpoint(t *testing.T) {
	prices := &mockPriceService{
		underlyingPriceFn: func(_ context.Context, market common.Address) (*big.Int, error) {
			return big.NewInt(42), nil
		},
	}
	mux := newTestMux(prices, &mockAdminService{})

	rec := doRequest(t, mux, http.MethodGet, "/v1/underlying-price/"+wethAddr.Hex(), "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
}

func TestAdminEndpoints_RequireToken(t *testing.T) {
	admin := &mockAdminService{}
	mux := newTestMux(&mockPriceService{}, admin)

	body := `{"assets":["` + wbtcAddr.Hex() + `"],"sources":["chainlink"]}`

	rec := doRequest(t, mux, http.MethodPost, "/v1/admin/sources", "", body)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, mux, http.MethodPost, "/v1/admin/sources", "wrong-token", body)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown token: status = %d, want 401", rec.Code)
	}

	if admin.setSourcesCalls != 0 {
		t.Errorf("service called %d times without valid token", admin.setSourcesCalls)
	}
}

func TestSetSources_PassesPrincipalToService(t *testing.T) {
	admin := &mockAdminService{}
	mux := newTestMux(&mockPriceService{}, admin)

	body := `{"assets":["` + wbtcAddr.Hex() + `"],"sources":["chainlink"]}`
	rec := doRequest(t, mux, http.MethodPost, "/v1/admin/sources", "admin-token", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	if admin.lastCaller != adminAddr {
		t.Errorf("caller = %s, want %s", admin.lastCaller.Hex(), adminAddr.Hex())
	}
	if admin.setSourcesCalls != 1 {
		t.Errorf("setSourcesCalls = %d, want 1", admin.setSourcesCalls)
	}
}

func TestSetSources_UnauthorizedPrincipalMapsTo403(t *testing.T) {
	admin := &mockAdminService{err: fmt.Errorf("caller: %w", entity.ErrUnauthorized)}
	mux := newTestMux(&mockPriceService{}, admin)

	body := `{"assets":["` + wbtcAddr.Hex() + `"],"sources":["chainlink"]}`
	rec := doRequest(t, mux, http.MethodPost, "/v1/admin/sources", "admin-token", body)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestSetFeeds(t *testing.T) {
	admin := &mockAdminService{}
	mux := newTestMux(&mockPriceService{}, admin)

	body := `{
		"source": "chainlink",
		"assets": ["` + wbtcAddr.Hex() + `"],
		"feeds": ["` + wethAddr.Hex() + `"],
		"quoteCurrency": "` + usdAddr.Hex() + `"
	}`
	rec := doRequest(t, mux, http.MethodPut, "/v1/admin/feeds", "admin-token", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if admin.setFeedsCalls != 1 {
		t.Errorf("setFeedsCalls = %d, want 1", admin.setFeedsCalls)
	}
}

func TestSetFeeds_RejectsBadQuoteCurrency(t *testing.T) {
	admin := &mockAdminService{}
	mux := newTestMux(&mockPriceService{}, admin)

	body := `{"source":"chainlink","assets":[],"feeds":[],"quoteCurrency":"nope"}`
	rec := doRequest(t, mux, http.MethodPut, "/v1/admin/feeds", "admin-token", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if admin.setFeedsCalls != 0 {
		t.Error("service should not be called with invalid input")
	}
}

func TestSetRole(t *testing.T) {
	admin := &mockAdminService{}
	mux := newTestMux(&mockPriceService{}, admin)

	body := `{"holder":"` + wethAddr.Hex() + `"}`

	rec := doRequest(t, mux, http.MethodPut, "/v1/admin/roles/admin", "admin-token", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin role: status = %d: %s", rec.Code, rec.Body)
	}
	if admin.setAdminCalls != 1 {
		t.Errorf("setAdminCalls = %d, want 1", admin.setAdminCalls)
	}

	rec = doRequest(t, mux, http.MethodPut, "/v1/admin/roles/guardian", "admin-token", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("guardian role: status = %d: %s", rec.Code, rec.Body)
	}
	if admin.setGuardianCalls != 1 {
		t.Errorf("setGuardianCalls = %d, want 1", admin.setGuardianCalls)
	}

	rec = doRequest(t, mux, http.MethodPut, "/v1/admin/roles/owner", "admin-token", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown role: status = %d, want 400", rec.Code)
	}
}

func TestBaseCurrencyEndpoint(t *testing.T) {
	mux := newTestMux(&mockPriceService{base: usdAddr}, &mockAdminService{})

	rec := doRequest(t, mux, http.MethodGet, "/v1/base-currency", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["baseCurrency"] != usdAddr.Hex() {
		t.Errorf("baseCurrency = %s, want %s", resp["baseCurrency"], usdAddr.Hex())
	}
}

func TestParsePrincipals(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"empty", "", 0, false},
		{"single", "tok:" + adminAddr.Hex(), 1, false},
		{"multiple", "a:" + adminAddr.Hex() + ",b:" + wethAddr.Hex(), 2, false},
		{"spaces tolerated", " a : " + adminAddr.Hex() + " , b : " + wethAddr.Hex(), 2, false},
		{"missing colon", "justatoken", 0, true},
		{"bad address", "tok:0x123", 0, true},
		{"duplicate token", "a:" + adminAddr.Hex() + ",a:" + wethAddr.Hex(), 0, true},
		{"empty token", ":" + adminAddr.Hex(), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrincipals(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}
