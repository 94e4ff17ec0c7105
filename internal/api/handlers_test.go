package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/openpacer/internal/analytics"
	"github.com/patrickwarner/openpacer/internal/config"
	"github.com/patrickwarner/openpacer/internal/models"
	"github.com/patrickwarner/openpacer/internal/observability"
	"github.com/patrickwarner/openpacer/internal/pacing"
)

func newTestServer(t *testing.T) (*Server, *mux.Router, *analytics.MockAnalytics) {
	t.Helper()
	mock := analytics.NewMockAnalytics()
	srv := NewServer(
		zap.NewNop(),
		models.NewStore(),
		nil,
		nil,
		mock,
		nil,
		observability.NewNoOpRegistry(),
		config.Config{DefaultTimezone: "UTC"},
	)
	return srv, srv.Routes(), mock
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createAndInit(t *testing.T, router *mux.Router, budget float64, lineItems int) []int {
	t.Helper()
	rec := doJSON(t, router, "POST", "/campaign", map[string]any{
		"id":              1,
		"name":            "summer-sale",
		"total_budget":    budget,
		"start_date":      "2020-07-09",
		"end_date":        "2020-07-12",
		"line_item_count": lineItems,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		LineItemIDs []int `json:"line_item_ids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.LineItemIDs, lineItems)

	rec = doJSON(t, router, "POST", "/campaign/1/init", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return resp.LineItemIDs
}

func TestCreateCampaignValidation(t *testing.T) {
	_, router, _ := newTestServer(t)

	rec := doJSON(t, router, "POST", "/campaign", map[string]any{
		"id": 1, "total_budget": -5, "start_date": "2020-07-09", "end_date": "2020-07-12", "line_item_count": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, "POST", "/campaign", map[string]any{
		"id": 1, "total_budget": 100, "start_date": "not-a-date", "end_date": "2020-07-12", "line_item_count": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateCampaignDuplicate(t *testing.T) {
	_, router, _ := newTestServer(t)
	createAndInit(t, router, 10000, 1)

	rec := doJSON(t, router, "POST", "/campaign", map[string]any{
		"id": 1, "total_budget": 100, "start_date": "2020-07-09", "end_date": "2020-07-12", "line_item_count": 1,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBidRequestBuys(t *testing.T) {
	_, router, mock := newTestServer(t)
	ids := createAndInit(t, router, 10000, 1)

	rec := doJSON(t, router, "POST", fmt.Sprintf("/li/%d/br", ids[0]), map[string]any{
		"id":        "br-1",
		"timestamp": "2020-07-09T04:00:00Z",
		"timezone":  "America/New_York",
		"cpm":       333.33,
		"imps":      1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp bidResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Buying)
	assert.Equal(t, "br-1", resp.ID)
	assert.Equal(t, "America/New_York", resp.Timezone)
	assert.InDelta(t, 0.33333, resp.Engaged, 1e-9)
	assert.Equal(t, 1, mock.DecisionCount())
}

func TestBidRequestDefaultsIDAndTimezone(t *testing.T) {
	_, router, _ := newTestServer(t)
	ids := createAndInit(t, router, 10000, 1)

	rec := doJSON(t, router, "POST", fmt.Sprintf("/li/%d/br", ids[0]), map[string]any{
		"timestamp": "2020-07-09T12:00:00Z",
		"cpm":       100,
		"imps":      1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp bidResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID, "server should assign an opportunity id")
	assert.Equal(t, "UTC", resp.Timezone)
}

func TestBidRequestErrors(t *testing.T) {
	_, router, _ := newTestServer(t)
	ids := createAndInit(t, router, 10000, 1)
	path := fmt.Sprintf("/li/%d/br", ids[0])

	// Unknown line item.
	rec := doJSON(t, router, "POST", "/li/999/br", map[string]any{"cpm": 1, "imps": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Out-of-window timestamp.
	rec = doJSON(t, router, "POST", path, map[string]any{
		"timestamp": "2020-06-01T00:00:00Z", "timezone": "UTC", "cpm": 1, "imps": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown timezone.
	rec = doJSON(t, router, "POST", path, map[string]any{
		"timestamp": "2020-07-09T12:00:00Z", "timezone": "Not/AZone", "cpm": 1, "imps": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Bad timestamp format.
	rec = doJSON(t, router, "POST", path, map[string]any{"timestamp": "yesterday", "cpm": 1, "imps": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBidRequestBeforeInit(t *testing.T) {
	_, router, _ := newTestServer(t)
	rec := doJSON(t, router, "POST", "/campaign", map[string]any{
		"id": 1, "total_budget": 100, "start_date": "2020-07-09", "end_date": "2020-07-12", "line_item_count": 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		LineItemIDs []int `json:"line_item_ids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = doJSON(t, router, "POST", fmt.Sprintf("/li/%d/br", resp.LineItemIDs[0]), map[string]any{"cpm": 1, "imps": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestNotificationFlow(t *testing.T) {
	_, router, mock := newTestServer(t)
	ids := createAndInit(t, router, 10000, 1)
	brPath := fmt.Sprintf("/li/%d/br", ids[0])
	notifPath := fmt.Sprintf("/li/%d/notif", ids[0])

	rec := doJSON(t, router, "POST", brPath, map[string]any{
		"id": "br-1", "timestamp": "2020-07-09T12:00:00Z", "timezone": "UTC", "cpm": 1000, "imps": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var bid bidResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bid))
	require.True(t, bid.Buying)

	rec = doJSON(t, router, "POST", notifPath, map[string]any{"id": "br-1", "outcome": "win"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, mock.NotificationCount())

	// Status reflects the confirmed spend.
	rec = doJSON(t, router, "GET", fmt.Sprintf("/li/%d/status", ids[0]), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.InDelta(t, 1.0, st.TotalSpent, 1e-9)
	assert.Contains(t, st.Partitions, "UTC")

	// Settling the same opportunity twice fails.
	rec = doJSON(t, router, "POST", notifPath, map[string]any{"id": "br-1", "outcome": "win"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Invalid outcome.
	rec = doJSON(t, router, "POST", notifPath, map[string]any{"id": "br-2", "outcome": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusTimezoneFilter(t *testing.T) {
	_, router, _ := newTestServer(t)
	ids := createAndInit(t, router, 10000, 1)

	rec := doJSON(t, router, "POST", fmt.Sprintf("/li/%d/br", ids[0]), map[string]any{
		"timestamp": "2020-07-09T12:00:00Z", "timezone": "Europe/Paris", "cpm": 1, "imps": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, "GET", fmt.Sprintf("/li/%d/status?tz=Europe/Paris", ids[0]), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var filtered map[string]pacing.PartitionStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &filtered))
	assert.Contains(t, filtered, "Europe/Paris")
	assert.Len(t, filtered, 1)

	rec = doJSON(t, router, "GET", fmt.Sprintf("/li/%d/status?tz=Asia/Tokyo", ids[0]), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetBudget(t *testing.T) {
	_, router, _ := newTestServer(t)
	ids := createAndInit(t, router, 10000, 1)
	path := fmt.Sprintf("/li/%d/budget", ids[0])

	rec := doJSON(t, router, "POST", path, map[string]any{"total_budget": 20000.0})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, "GET", fmt.Sprintf("/li/%d/status", ids[0]), nil)
	var st statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 20000.0, st.TotalBudget)

	rec = doJSON(t, router, "POST", path, map[string]any{"total_budget": -1.0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetDiscardsPacingState(t *testing.T) {
	_, router, _ := newTestServer(t)
	ids := createAndInit(t, router, 10000, 1)

	rec := doJSON(t, router, "POST", fmt.Sprintf("/li/%d/br", ids[0]), map[string]any{
		"id": "br-1", "timestamp": "2020-07-09T12:00:00Z", "timezone": "UTC", "cpm": 1000, "imps": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, "POST", fmt.Sprintf("/li/%d/reset", ids[0]), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, "GET", fmt.Sprintf("/li/%d/status", ids[0]), nil)
	var st statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Zero(t, st.TotalSpent)
	assert.Empty(t, st.Partitions)
}

func TestDeleteCampaignRemovesLineItems(t *testing.T) {
	_, router, _ := newTestServer(t)
	ids := createAndInit(t, router, 10000, 2)

	rec := doJSON(t, router, "DELETE", "/campaign/1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, "POST", fmt.Sprintf("/li/%d/br", ids[0]), map[string]any{"cpm": 1, "imps": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, "DELETE", "/campaign/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEndpoints(t *testing.T) {
	_, router, _ := newTestServer(t)
	createAndInit(t, router, 10000, 3)

	rec := doJSON(t, router, "GET", "/campaign", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var campaigns []models.Campaign
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &campaigns))
	require.Len(t, campaigns, 1)
	assert.True(t, campaigns[0].Initialized)

	rec = doJSON(t, router, "GET", "/li", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []lineItemSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 3)
	for _, li := range items {
		assert.InDelta(t, 10000.0/3, li.Budget, 1e-9)
		assert.True(t, li.Initialized)
	}
}

func TestHealth(t *testing.T) {
	_, router, _ := newTestServer(t)
	rec := doJSON(t, router, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","line_items":0,"pacing":0}`, rec.Body.String())
}

func TestHealthCountsPacingLineItems(t *testing.T) {
	_, router, _ := newTestServer(t)
	createAndInit(t, router, 10000, 2)

	rec := doJSON(t, router, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.LineItems)
	assert.Equal(t, 2, resp.Pacing)
}

func TestConcurrentBidAndReset(t *testing.T) {
	_, router, _ := newTestServer(t)
	ids := createAndInit(t, router, 10000, 1)
	brPath := fmt.Sprintf("/li/%d/br", ids[0])
	resetPath := fmt.Sprintf("/li/%d/reset", ids[0])

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		bid := map[string]any{
			"id":        fmt.Sprintf("br-%d", i),
			"timestamp": "2020-07-09T12:00:00Z",
			"timezone":  "UTC",
			"cpm":       100,
			"imps":      1,
		}
		go func(body map[string]any) {
			defer wg.Done()
			var buf bytes.Buffer
			if err := json.NewEncoder(&buf).Encode(body); err != nil {
				t.Error(err)
				return
			}
			req := httptest.NewRequest("POST", brPath, &buf)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Errorf("bid status %d: %s", rec.Code, rec.Body.String())
			}
		}(bid)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest("POST", resetPath, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Errorf("reset status %d: %s", rec.Code, rec.Body.String())
			}
		}()
	}
	wg.Wait()

	rec := doJSON(t, router, "GET", fmt.Sprintf("/li/%d/status", ids[0]), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 10000.0, st.TotalBudget)
}
