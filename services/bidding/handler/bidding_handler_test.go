package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"auction-engine/internal/auth"
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const callerHeader = "X-Test-Caller"

// asCaller stands in for the auth middleware: the header value becomes the caller id.
func asCaller(c *gin.Context) {
	if id := c.GetHeader(callerHeader); id != "" {
		c.Request = c.Request.WithContext(auth.WithUserID(c.Request.Context(), id))
	}
	c.Next()
}

func newTestRouter(t *testing.T) (*gin.Engine, *MockBiddingServiceInterface) {
	ctrl := gomock.NewController(t)
	mockService := NewMockBiddingServiceInterface(ctrl)
	handler := NewBiddingHandler(mockService)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(asCaller)
	router.POST("/products", handler.CreateProductHandler)
	router.GET("/products", handler.ListProductsHandler)
	router.GET("/products/:product_id", handler.GetProductHandler)
	router.DELETE("/products/:product_id", handler.DeleteProductHandler)
	router.POST("/products/:product_id/bids", handler.PlaceBidHandler)
	router.GET("/products/:product_id/bids", handler.GetBidsByProductHandler)
	router.GET("/products/:product_id/winning", handler.GetWinningBidHandler)
	router.GET("/users/:user_id/products", handler.GetProductsBySellerHandler)
	router.GET("/users/:user_id/bids", handler.GetProductsByBidderHandler)
	return router, mockService
}

func doRequest(t *testing.T, router http.Handler, method, path, caller string, body any) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(callerHeader, caller)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestPlaceBidHandler(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name           string
		caller         string
		productID      string
		requestBody    any
		mockSetup      func(m *MockBiddingServiceInterface, productID string)
		expectedStatus int
		expectedMsg    string
		validate       func(t *testing.T, resp map[string]any)
	}{
		{
			name:        "accepted_numeric_amount",
			caller:      "bob",
			productID:   uuid.NewString(),
			requestBody: `{"amount": 151}`,
			mockSetup: func(m *MockBiddingServiceInterface, productID string) {
				m.EXPECT().
					PlaceBid(gomock.Any(), productID, "bob", decimal.RequireFromString("151")).
					Return(bidding.PlaceBidResult{
						Accepted: true,
						Bid: model.Bid{
							BidID:     uuid.NewString(),
							ProductID: productID,
							BidderID:  "bob",
							Amount:    decimal.RequireFromString("151"),
							CreatedAt: now,
						},
						MinRequired: decimal.RequireFromString("150"),
					}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid placed successfully",
			validate: func(t *testing.T, resp map[string]any) {
				data := resp["data"].(map[string]any)
				require.NoError(t, uuid.Validate(data["id"].(string)))
				require.Equal(t, "bob", data["bidder_id"])
				require.Equal(t, "151.00", data["amount"])
			},
		},
		{
			name:        "accepted_string_amount",
			caller:      "carol",
			productID:   uuid.NewString(),
			requestBody: `{"amount": "100.25"}`,
			mockSetup: func(m *MockBiddingServiceInterface, productID string) {
				m.EXPECT().
					PlaceBid(gomock.Any(), productID, "carol", decimal.RequireFromString("100.25")).
					Return(bidding.PlaceBidResult{
						Accepted: true,
						Bid: model.Bid{
							BidID:     uuid.NewString(),
							ProductID: productID,
							BidderID:  "carol",
							Amount:    decimal.RequireFromString("100.25"),
							CreatedAt: now,
						},
					}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid placed successfully",
			validate: func(t *testing.T, resp map[string]any) {
				require.Equal(t, "100.25", resp["data"].(map[string]any)["amount"])
			},
		},
		{
			name:        "rejected_too_low",
			caller:      "dave",
			productID:   uuid.NewString(),
			requestBody: `{"amount": 120}`,
			mockSetup: func(m *MockBiddingServiceInterface, productID string) {
				m.EXPECT().
					PlaceBid(gomock.Any(), productID, "dave", decimal.RequireFromString("120")).
					Return(bidding.PlaceBidResult{MinRequired: decimal.RequireFromString("150")}, nil)
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "bid rejected",
			validate: func(t *testing.T, resp map[string]any) {
				require.Equal(t, "Bid must be greater than 150.00.", resp["detail"])
				require.Equal(t, "150.00", resp["min_required"])
				require.Nil(t, resp["data"])
			},
		},
		{
			name:           "unauthenticated",
			productID:      uuid.NewString(),
			requestBody:    `{"amount": 120}`,
			mockSetup:      func(*MockBiddingServiceInterface, string) {},
			expectedStatus: http.StatusUnauthorized,
			expectedMsg:    "authentication required",
		},
		{
			name:           "malformed_product_id",
			caller:         "erin",
			productID:      "not-a-uuid",
			requestBody:    `{"amount": 120}`,
			mockSetup:      func(*MockBiddingServiceInterface, string) {},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "product not found",
		},
		{
			name:           "invalid_json",
			caller:         "erin",
			productID:      uuid.NewString(),
			requestBody:    `{invalid json}`,
			mockSetup:      func(*MockBiddingServiceInterface, string) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "missing_amount",
			caller:         "erin",
			productID:      uuid.NewString(),
			requestBody:    `{}`,
			mockSetup:      func(*MockBiddingServiceInterface, string) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "amount_not_a_number",
			caller:         "erin",
			productID:      uuid.NewString(),
			requestBody:    `{"amount": "lots"}`,
			mockSetup:      func(*MockBiddingServiceInterface, string) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:        "service_invalid_bid",
			caller:      "frank",
			productID:   uuid.NewString(),
			requestBody: `{"amount": -5}`,
			mockSetup: func(m *MockBiddingServiceInterface, productID string) {
				m.EXPECT().
					PlaceBid(gomock.Any(), productID, "frank", decimal.RequireFromString("-5")).
					Return(bidding.PlaceBidResult{}, fmt.Errorf("service: %w", biddingerrors.ErrInvalidBid))
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid bid details",
		},
		{
			name:        "product_not_found",
			caller:      "frank",
			productID:   uuid.NewString(),
			requestBody: `{"amount": 10}`,
			mockSetup: func(m *MockBiddingServiceInterface, productID string) {
				m.EXPECT().
					PlaceBid(gomock.Any(), productID, "frank", decimal.RequireFromString("10")).
					Return(bidding.PlaceBidResult{}, fmt.Errorf("service: %w", biddingerrors.ErrProductNotFound))
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "product not found",
		},
		{
			name:        "lock_timeout",
			caller:      "grace",
			productID:   uuid.NewString(),
			requestBody: `{"amount": 10}`,
			mockSetup: func(m *MockBiddingServiceInterface, productID string) {
				m.EXPECT().
					PlaceBid(gomock.Any(), productID, "grace", decimal.RequireFromString("10")).
					Return(bidding.PlaceBidResult{}, fmt.Errorf("service: %w", biddingerrors.ErrLockTimeout))
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedMsg:    "product is busy",
		},
		{
			name:        "storage_failure",
			caller:      "grace",
			productID:   uuid.NewString(),
			requestBody: `{"amount": 10}`,
			mockSetup: func(m *MockBiddingServiceInterface, productID string) {
				m.EXPECT().
					PlaceBid(gomock.Any(), productID, "grace", decimal.RequireFromString("10")).
					Return(bidding.PlaceBidResult{}, fmt.Errorf("service: %w: %w", biddingerrors.ErrStorage, errors.New("disk full")))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "storage failure",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, mockService := newTestRouter(t)
			tc.mockSetup(mockService, tc.productID)

			status, resp := doRequest(t, router, http.MethodPost, "/products/"+tc.productID+"/bids", tc.caller, tc.requestBody)

			require.Equal(t, tc.expectedStatus, status)
			require.Contains(t, resp["message"], tc.expectedMsg)
			if tc.validate != nil {
				tc.validate(t, resp)
			}
		})
	}
}

// Client mistakes are logged as warnings; only server faults reach error level.
func TestFailureLogLevel(t *testing.T) {
	var buf bytes.Buffer
	utils.SetLogOutput(&buf)
	t.Cleanup(func() { utils.SetLogOutput(os.Stdout) })

	tests := []struct {
		name      string
		path      string
		body      string
		mockSetup func(m *MockBiddingServiceInterface)
		wantLevel string
	}{
		{
			name: "invalid_bid",
			path: "/products/" + uuid.NewString() + "/bids",
			body: `{"amount": 1e-999999999}`,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().PlaceBid(gomock.Any(), gomock.Any(), "alice", gomock.Any()).
					Return(bidding.PlaceBidResult{}, fmt.Errorf("service: %w", biddingerrors.ErrInvalidBid))
			},
			wantLevel: "warning",
		},
		{
			name: "unknown_product",
			path: "/products/" + uuid.NewString() + "/bids",
			body: `{"amount": 150}`,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().PlaceBid(gomock.Any(), gomock.Any(), "alice", gomock.Any()).
					Return(bidding.PlaceBidResult{}, biddingerrors.ErrProductNotFound)
			},
			wantLevel: "warning",
		},
		{
			name: "lock_timeout",
			path: "/products/" + uuid.NewString() + "/bids",
			body: `{"amount": 150}`,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().PlaceBid(gomock.Any(), gomock.Any(), "alice", gomock.Any()).
					Return(bidding.PlaceBidResult{}, fmt.Errorf("wait: %w", biddingerrors.ErrLockTimeout))
			},
			wantLevel: "error",
		},
		{
			name: "invalid_product",
			path: "/products",
			body: `{"title": "Lamp", "starting_bid": 1e999999999}`,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().CreateProduct(gomock.Any(), "alice", gomock.Any()).
					Return(model.Product{}, fmt.Errorf("service: %w", biddingerrors.ErrInvalidProduct))
			},
			wantLevel: "warning",
		},
		{
			name: "product_storage_failure",
			path: "/products",
			body: `{"title": "Lamp", "starting_bid": 100}`,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().CreateProduct(gomock.Any(), "alice", gomock.Any()).
					Return(model.Product{}, biddingerrors.ErrStorage)
			},
			wantLevel: "error",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router, mockService := newTestRouter(t)
			tc.mockSetup(mockService)

			buf.Reset()
			doRequest(t, router, http.MethodPost, tc.path, "alice", tc.body)

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			var entry map[string]any
			require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry), buf.String())
			require.Contains(t, entry["msg"], "failed to")
			require.Equal(t, tc.wantLevel, entry["level"])
		})
	}
}

func TestGetBidsByProductHandler(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name           string
		mockSetup      func(m *MockBiddingServiceInterface, productID string)
		expectedStatus int
		expectedMsg    string
		expectedLen    int
	}{
		{
			name: "success_multiple_bids",
			mockSetup: func(m *MockBiddingServiceInterface, productID string) {
				m.EXPECT().
					GetBidsForProduct(gomock.Any(), productID).
					Return([]model.Bid{
						{BidID: uuid.NewString(), ProductID: productID, BidderID: "user2", Amount: decimal.NewFromInt(150), CreatedAt: now},
						{BidID: uuid.NewString(), ProductID: productID, BidderID: "user1", Amount: decimal.NewFromInt(100), CreatedAt: now},
					}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "bids retrieved successfully",
			expectedLen:    2,
		},
		{
			name: "service_no_bids_error",
			mockSetup: func(m *MockBiddingServiceInterface, productID string) {
				m.EXPECT().
					GetBidsForProduct(gomock.Any(), productID).
					Return(nil, biddingerrors.ErrNoBids)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "bids retrieved successfully",
			expectedLen:    0,
		},
		{
			name: "product_not_found",
			mockSetup: func(m *MockBiddingServiceInterface, productID string) {
				m.EXPECT().
					GetBidsForProduct(gomock.Any(), productID).
					Return(nil, biddingerrors.ErrProductNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "product not found",
		},
		{
			name: "service_generic_error",
			mockSetup: func(m *MockBiddingServiceInterface, productID string) {
				m.EXPECT().
					GetBidsForProduct(gomock.Any(), productID).
					Return(nil, errors.New("database failure"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "internal server error",
		},
		{
			name: "extremely_large_number_of_bids",
			mockSetup: func(m *MockBiddingServiceInterface, productID string) {
				bids := make([]model.Bid, 1000)
				for i := range bids {
					bids[i] = model.Bid{
						BidID:     uuid.NewString(),
						ProductID: productID,
						BidderID:  fmt.Sprintf("user%d", i),
						Amount:    decimal.NewFromInt(int64(1000 - i)),
						CreatedAt: now,
					}
				}
				m.EXPECT().GetBidsForProduct(gomock.Any(), productID).Return(bids, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "bids retrieved successfully",
			expectedLen:    1000,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, mockService := newTestRouter(t)
			productID := uuid.NewString()
			tc.mockSetup(mockService, productID)

			status, resp := doRequest(t, router, http.MethodGet, "/products/"+productID+"/bids", "", nil)

			require.Equal(t, tc.expectedStatus, status)
			require.Contains(t, resp["message"], tc.expectedMsg)
			if status == http.StatusOK {
				data := resp["data"].([]any)
				require.Len(t, data, tc.expectedLen)
			}
		})
	}
}

func TestGetWinningBidHandler(t *testing.T) {
	tests := []struct {
		name           string
		mockSetup      func(m *MockBiddingServiceInterface, productID string)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name: "success",
			mockSetup: func(m *MockBiddingServiceInterface, productID string) {
				m.EXPECT().
					GetWinningBid(gomock.Any(), productID).
					Return(model.Bid{BidID: uuid.NewString(), ProductID: productID, BidderID: "user1", Amount: decimal.RequireFromString("200.5")}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "winning bid retrieved successfully",
		},
		{
			name: "no_bids",
			mockSetup: func(m *MockBiddingServiceInterface, productID string) {
				m.EXPECT().
					GetWinningBid(gomock.Any(), productID).
					Return(model.Bid{}, fmt.Errorf("service: %w", biddingerrors.ErrNoBids))
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "no winning bid found",
		},
		{
			name: "product_not_found",
			mockSetup: func(m *MockBiddingServiceInterface, productID string) {
				m.EXPECT().
					GetWinningBid(gomock.Any(), productID).
					Return(model.Bid{}, biddingerrors.ErrProductNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "product not found",
		},
		{
			name: "service_generic_error",
			mockSetup: func(m *MockBiddingServiceInterface, productID string) {
				m.EXPECT().
					GetWinningBid(gomock.Any(), productID).
					Return(model.Bid{}, errors.New("database failure"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "internal server error",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, mockService := newTestRouter(t)
			productID := uuid.NewString()
			tc.mockSetup(mockService, productID)

			status, resp := doRequest(t, router, http.MethodGet, "/products/"+productID+"/winning", "", nil)

			require.Equal(t, tc.expectedStatus, status)
			require.Contains(t, resp["message"], tc.expectedMsg)
			if status == http.StatusOK {
				require.Equal(t, "200.50", resp["data"].(map[string]any)["amount"])
			}
		})
	}
}

func TestGetProductsByBidderHandler(t *testing.T) {
	tests := []struct {
		name           string
		userID         string
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedLen    int
	}{
		{
			name:   "success",
			userID: "user1",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					GetProductsByBidder(gomock.Any(), "user1").
					Return([]model.Product{{ProductID: uuid.NewString(), Title: "Lamp"}}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedLen:    1,
		},
		{
			name:   "user_without_bids",
			userID: "user2",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					GetProductsByBidder(gomock.Any(), "user2").
					Return(nil, biddingerrors.ErrUserNoBids)
			},
			expectedStatus: http.StatusOK,
			expectedLen:    0,
		},
		{
			name:   "storage_failure",
			userID: "user3",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					GetProductsByBidder(gomock.Any(), "user3").
					Return(nil, biddingerrors.ErrStorage)
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, mockService := newTestRouter(t)
			tc.mockSetup(mockService)

			status, resp := doRequest(t, router, http.MethodGet, "/users/"+tc.userID+"/bids", "", nil)

			require.Equal(t, tc.expectedStatus, status)
			if status == http.StatusOK {
				require.Len(t, resp["data"].([]any), tc.expectedLen)
			}
		})
	}
}
