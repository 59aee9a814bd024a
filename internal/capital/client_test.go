package capital

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DhruvalBhuva/trading-algo/internal/model"
)

// fakeAPI is an httptest-backed Capital.com API stub. It issues real RSA
// encryption keys so the login flow runs end to end, and records requests
// for assertions.
type fakeAPI struct {
	t          *testing.T
	key        *rsa.PrivateKey
	logins     int
	lastLogin  map[string]any
	handlers   map[string]http.HandlerFunc
	sessionSeq int
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &fakeAPI{t: t, key: key, handlers: map[string]http.HandlerFunc{}}
}

func (f *fakeAPI) publicKeyB64() string {
	der, err := x509.MarshalPKIXPublicKey(&f.key.PublicKey)
	require.NoError(f.t, err)
	return base64.StdEncoding.EncodeToString(der)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h, ok := f.handlers[r.Method+" "+r.URL.Path]; ok {
		h(w, r)
		return
	}
	switch r.Method + " " + r.URL.Path {
	case "GET /session/encryptionKey":
		json.NewEncoder(w).Encode(map[string]any{
			"encryptionKey": f.publicKeyB64(),
			"timeStamp":     time.Now().UnixMilli(),
		})
	case "POST /session":
		f.logins++
		f.sessionSeq++
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.lastLogin = body
		w.Header().Set("CST", "cst-"+string(rune('0'+f.sessionSeq)))
		w.Header().Set("X-SECURITY-TOKEN", "tok-"+string(rune('0'+f.sessionSeq)))
		w.WriteHeader(http.StatusOK)
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, api *fakeAPI) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "test-key", "user@example.com", "hunter2")
	return c, srv
}

func TestLogin(t *testing.T) {
	api := newFakeAPI(t)
	c, _ := newTestClient(t, api)

	require.NoError(t, c.Login(context.Background()))
	assert.Equal(t, 1, api.logins)

	// The password must arrive RSA-encrypted as base64("password|timestamp").
	assert.Equal(t, true, api.lastLogin["encryptedPassword"])
	ciphertext, err := base64.StdEncoding.DecodeString(api.lastLogin["password"].(string))
	require.NoError(t, err)
	plain, err := rsa.DecryptPKCS1v15(nil, api.key, ciphertext)
	require.NoError(t, err)
	decoded, err := base64.StdEncoding.DecodeString(string(plain))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(decoded), "hunter2|"))

	creds, err := c.SessionCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-key", creds.APIKey)
	assert.Equal(t, "cst-1", creds.CST)
	assert.Equal(t, "tok-1", creds.SecurityToken)
}

func TestSessionCredentials_LoginOnDemand(t *testing.T) {
	api := newFakeAPI(t)
	c, _ := newTestClient(t, api)

	// No explicit Login call: the first credential request triggers one.
	creds, err := c.SessionCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cst-1", creds.CST)
	assert.Equal(t, 1, api.logins)

	// Cached session is reused until invalidated.
	_, err = c.SessionCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, api.logins)

	c.InvalidateSession()
	creds, err = c.SessionCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cst-2", creds.CST)
	assert.Equal(t, 2, api.logins)
}

func TestDoRequest_UnauthorizedInvalidatesSession(t *testing.T) {
	api := newFakeAPI(t)
	unauthorized := true
	api.handlers["GET /accounts"] = func(w http.ResponseWriter, r *http.Request) {
		if unauthorized {
			unauthorized = false
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "cst-2", r.Header.Get("CST"))
		json.NewEncoder(w).Encode(accountsResponse{Accounts: []apiAccount{{AccountID: "A1"}}})
	}
	c, _ := newTestClient(t, api)

	_, err := c.Accounts(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.False(t, apiErr.IsRetryable())

	// The 401 dropped the cached session, so the next call logs in again.
	accounts, err := c.Accounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, api.logins)
	assert.Len(t, accounts, 1)
}

func TestAccountByID(t *testing.T) {
	api := newFakeAPI(t)
	api.handlers["GET /accounts"] = func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(accountsResponse{Accounts: []apiAccount{
			{AccountID: "A1", AccountName: "demo", Currency: "USD"},
			{AccountID: "A2", AccountName: "live", Currency: "EUR"},
		}})
	}
	c, _ := newTestClient(t, api)
	require.NoError(t, c.Login(context.Background()))

	a, err := c.AccountByID(context.Background(), "A2")
	require.NoError(t, err)
	assert.Equal(t, "live", a.Name)

	// Empty id selects the first account.
	a, err = c.AccountByID(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "A1", a.AccountID)

	_, err = c.AccountByID(context.Background(), "A9")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestGetPrices(t *testing.T) {
	api := newFakeAPI(t)
	api.handlers["GET /prices/GOLD"] = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DAY", r.URL.Query().Get("resolution"))
		assert.Equal(t, "2026-08-28T00:00:00", r.URL.Query().Get("from"))
		json.NewEncoder(w).Encode(pricesResponse{Prices: []PriceCandle{{
			SnapshotTime: "2026-08-28T00:00:00",
			High:         PricePair{Bid: 2420, Ask: 2421},
			Low:          PricePair{Bid: 2380, Ask: 2381},
		}}})
	}
	c, _ := newTestClient(t, api)

	from := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	candles, err := c.GetPrices(context.Background(), "GOLD", "DAY", from, from.Add(24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, candles, 1)

	ts, err := candles[0].Time()
	require.NoError(t, err)
	assert.Equal(t, from, ts)
	assert.Equal(t, 2420.0, candles[0].High.Bid)
}

func TestWorkingOrderValidation(t *testing.T) {
	dist := 5.0
	tests := []struct {
		name string
		req  WorkingOrderRequest
		want error
	}{
		{"bad direction", WorkingOrderRequest{Direction: "LONG", Size: 1, Level: 100, Type: "STOP"}, ErrInvalidDirection},
		{"zero size", WorkingOrderRequest{Direction: model.SideBuy, Size: 0, Level: 100, Type: "STOP"}, ErrInvalidSize},
		{"zero level", WorkingOrderRequest{Direction: model.SideBuy, Size: 1, Level: 0, Type: "STOP"}, ErrInvalidLevel},
		{"bad type", WorkingOrderRequest{Direction: model.SideBuy, Size: 1, Level: 100, Type: "MARKET"}, ErrInvalidOrderType},
		{"stop conflict", WorkingOrderRequest{Direction: model.SideBuy, Size: 1, Level: 100, Type: "STOP", GuaranteedStop: true, TrailingStop: true, StopDistance: &dist}, ErrStopConflict},
		{"guaranteed without stop", WorkingOrderRequest{Direction: model.SideBuy, Size: 1, Level: 100, Type: "STOP", GuaranteedStop: true}, ErrGuaranteedStopNeedsStop},
		{"trailing without distance", WorkingOrderRequest{Direction: model.SideBuy, Size: 1, Level: 100, Type: "STOP", TrailingStop: true}, ErrTrailingStopNeedsDist},
		{"bad good till date", WorkingOrderRequest{Direction: model.SideBuy, Size: 1, Level: 100, Type: "STOP", GoodTillDate: "tomorrow"}, ErrInvalidGoodTillDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&Client{}).CreateWorkingOrder(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUpdateWorkingOrder(t *testing.T) {
	api := newFakeAPI(t)
	var got map[string]any
	api.handlers["PUT /workingorders/DEAL7"] = func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(WorkingOrderResponse{DealReference: "o_DEAL7"})
	}
	c, _ := newTestClient(t, api)

	level := 101.5
	resp, err := c.UpdateWorkingOrder(context.Background(), "DEAL7", UpdateWorkingOrderRequest{Level: &level})
	require.NoError(t, err)
	assert.Equal(t, "o_DEAL7", resp.DealReference)
	assert.Equal(t, map[string]any{"level": 101.5}, got)

	_, err = c.UpdateWorkingOrder(context.Background(), "DEAL7", UpdateWorkingOrderRequest{GoodTillDate: "never"})
	assert.ErrorIs(t, err, ErrInvalidGoodTillDate)
}

func TestPlaceStopOrder(t *testing.T) {
	api := newFakeAPI(t)
	var got map[string]any
	api.handlers["POST /workingorders"] = func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(WorkingOrderResponse{DealReference: "o_DEAL42"})
	}
	c, _ := newTestClient(t, api)

	dealRef, dealID, err := c.PlaceStopOrder(context.Background(), model.Order{
		Epic:        "GOLD",
		Direction:   model.SideBuy,
		Size:        4,
		Level:       100.5,
		StopLevel:   99,
		ProfitLevel: 103.5,
		OrderType:   "STOP",
	})
	require.NoError(t, err)
	assert.Equal(t, "o_DEAL42", dealRef)
	assert.Equal(t, "DEAL42", dealID)

	assert.Equal(t, "GOLD", got["epic"])
	assert.Equal(t, "BUY", got["direction"])
	assert.Equal(t, 99.0, got["stopLevel"])
	assert.Equal(t, 103.5, got["profitLevel"])
	require.IsType(t, "", got["dealReference"])
	assert.True(t, strings.HasPrefix(got["dealReference"].(string), "ta_"))
}
