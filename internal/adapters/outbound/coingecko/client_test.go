package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		config  ClientConfig
		wantErr bool
	}{
		{
			name: "valid config",
			config: ClientConfig{
				APIKey: "test-api-key",
			},
			wantErr: false,
		},
		{
			name:    "missing API key",
			config:  ClientConfig{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && client == nil {
				t.Error("NewClient() returned nil client")
			}
		})
	}
}

func TestClient_Name(t *testing.T) {
	client, _ := NewClient(ClientConfig{APIKey: "test"})
	if got := client.Name(); got != "coingecko" {
		t.Errorf("Name() = %v, want coingecko", got)
	}
}

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		APIKey:          "test-key",
		BaseURL:         server.URL,
		MaxRetries:      1,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      2 * time.Millisecond,
		RateLimitPerMin: 60000,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestClient_CurrentPrices(t *testing.T) {
	var gotQuery string
	var gotAPIKey string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAPIKey = r.Header.Get("x-cg-pro-api-key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"ethereum": {"usd": 3456.78},
			"wrapped-bitcoin": {"usd": 45678.90}
		}`))
	})

	prices, err := client.CurrentPrices(context.Background(), []string{"ethereum", "wrapped-bitcoin"})
	if err != nil {
		t.Fatalf("CurrentPrices: %v", err)
	}

	if len(prices) != 2 {
		t.Fatalf("expected 2 prices, got %d", len(prices))
	}
	byID := make(map[string]float64)
	for _, p := range prices {
		byID[p.AssetID] = p.PriceUSD
	}
	if byID["ethereum"] != 3456.78 {
		t.Errorf("ethereum price = %v, want 3456.78", byID["ethereum"])
	}
	if byID["wrapped-bitcoin"] != 45678.90 {
		t.Errorf("wrapped-bitcoin price = %v, want 45678.90", byID["wrapped-bitcoin"])
	}

	if gotAPIKey != "test-key" {
		t.Errorf("api key header = %q, want test-key", gotAPIKey)
	}
	if gotQuery == "" {
		t.Error("expected query parameters")
	}
}

func TestClient_CurrentPrices_EmptyInput(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty input")
	})

	prices, err := client.CurrentPrices(context.Background(), nil)
	if err != nil {
		t.Fatalf("CurrentPrices: %v", err)
	}
	if len(prices) != 0 {
		t.Errorf("expected no prices, got %d", len(prices))
	}
}

func TestClient_CurrentPrices_UnknownIDsAreAbsent(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ethereum": {"usd": 3456.78}}`))
	})

	prices, err := client.CurrentPrices(context.Background(), []string{"ethereum", "no-such-coin"})
	if err != nil {
		t.Fatalf("CurrentPrices: %v", err)
	}
	if len(prices) != 1 || prices[0].AssetID != "ethereum" {
		t.Errorf("unexpected prices: %+v", prices)
	}
}

func TestClient_CurrentPrices_APIErrorIsNotRetried(t *testing.T) {
	requests := 0
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "invalid vs_currency"}`))
	})

	_, err := client.CurrentPrices(context.Background(), []string{"ethereum"})
	if err == nil {
		t.Fatal("expected error")
	}
	if requests != 1 {
		t.Errorf("expected 1 request (no retries), got %d", requests)
	}
}

func TestClient_CurrentPrices_RetriesServerErrors(t *testing.T) {
	requests := 0
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ethereum": {"usd": 3456.78}}`))
	})

	prices, err := client.CurrentPrices(context.Background(), []string{"ethereum"})
	if err != nil {
		t.Fatalf("CurrentPrices: %v", err)
	}
	if len(prices) != 1 {
		t.Fatalf("expected 1 price, got %d", len(prices))
	}
	if requests != 2 {
		t.Errorf("expected 2 requests, got %d", requests)
	}
}
