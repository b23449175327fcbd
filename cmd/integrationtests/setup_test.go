package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"auction-engine/internal/auth"
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/metrics"
	"auction-engine/internal/repository"
	"auction-engine/internal/repository/sqlite"
	"auction-engine/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const testSecret = "integration-secret"

// testEnv is a fully wired server over a real ledger.
type testEnv struct {
	router *gin.Engine
	jwt    *auth.JWTManager
}

type backend struct {
	name string
	open func(t *testing.T) repository.Ledger
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) repository.Ledger {
			return repository.NewMemoryRepo()
		}},
		{"sqlite", func(t *testing.T) repository.Ledger {
			store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "auction.db"))
			require.NoError(t, err)
			return store
		}},
	}
}

// SetupTestEnv initializes the router over repo for integration testing.
func SetupTestEnv(t *testing.T, repo repository.Ledger) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Cleanup(func() { _ = repo.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	jwtManager := auth.NewJWTManager(testSecret, time.Hour)
	router := server.SetupRouter(server.Deps{
		Service:    bidding.NewBiddingService(repo, bidding.WithMetrics(m)),
		JWTManager: jwtManager,
		Metrics:    m,
		Gatherer:   reg,
	})
	return &testEnv{router: router, jwt: jwtManager}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.jwt.Generate(userID)
	require.NoError(t, err)
	return token
}

// newRequest builds a JSON request as userID (anonymous when empty). It must run on
// the test goroutine.
func (e *testEnv) newRequest(t *testing.T, method, url, userID string, body any) *http.Request {
	t.Helper()

	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case string:
		reqBody = []byte(v)
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	}
	return req
}

// serve runs req through the router. Safe to call from any goroutine.
func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// ExecuteRequestAndParse executes an HTTP request as userID (anonymous when empty)
// and parses the response envelope.
func (e *testEnv) ExecuteRequestAndParse(t *testing.T, method, url, userID string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	w := e.serve(e.newRequest(t, method, url, userID, body))

	var resp map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return resp, w
}

// createProduct lists a product for sellerID and returns its id.
func (e *testEnv) createProduct(t *testing.T, sellerID, startingBid string) string {
	t.Helper()

	resp, w := e.ExecuteRequestAndParse(t, http.MethodPost, "/products", sellerID, map[string]any{
		"title":        "Vintage lamp",
		"description":  "brass, working",
		"location":     "Porto",
		"starting_bid": startingBid,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return resp["data"].(map[string]any)["id"].(string)
}

func (e *testEnv) bidRequest(t *testing.T, productID, bidderID, amount string) *http.Request {
	t.Helper()
	return e.newRequest(t, http.MethodPost, "/products/"+productID+"/bids", bidderID,
		map[string]any{"amount": json.Number(amount)})
}

func (e *testEnv) placeBid(t *testing.T, productID, bidderID, amount string) (map[string]any, int) {
	t.Helper()

	resp, w := e.ExecuteRequestAndParse(t, http.MethodPost, "/products/"+productID+"/bids", bidderID,
		map[string]any{"amount": json.Number(amount)})
	return resp, w.Code
}

func (e *testEnv) bids(t *testing.T, productID string) []any {
	t.Helper()

	resp, w := e.ExecuteRequestAndParse(t, http.MethodGet, "/products/"+productID+"/bids", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	return resp["data"].([]any)
}

func (e *testEnv) product(t *testing.T, productID string) map[string]any {
	t.Helper()

	resp, w := e.ExecuteRequestAndParse(t, http.MethodGet, "/products/"+productID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	return resp["data"].(map[string]any)
}
