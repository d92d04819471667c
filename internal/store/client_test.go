package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storybook-server/internal/models"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Prefer string
	Body   []byte
}

// newTestServer поднимает httptest-сервер, записывающий запросы и отдающий
// заданный статус и тело.
func newTestServer(t *testing.T, status int, responseBody string) (*Client, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Prefer: r.Header.Get("Prefer"),
			Body:   body,
		})

		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(responseBody))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "service-key", 5*time.Second, zap.NewNop()), &requests
}

func TestClient_SelectBuildsFilterQuery(t *testing.T) {
	client, requests := newTestServer(t, http.StatusOK, `[{"user_id":"user-123","free_total":2,"free_used":1}]`)

	var rows []models.UsageQuota
	err := client.Select(context.Background(), "usage_quotas", map[string]string{"user_id": Eq("user-123")}, &rows)
	require.NoError(t, err)

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/usage_quotas", req.Path)
	assert.Equal(t, "user_id=eq.user-123", req.Query)

	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].FreeUsed)
}

func TestClient_InsertPrefersMinimalWithoutOut(t *testing.T) {
	client, requests := newTestServer(t, http.StatusCreated, "")

	err := client.Insert(context.Background(), "webhook_events", map[string]string{"event_id": "evt_1"}, InsertOptions{}, nil)
	require.NoError(t, err)

	req := (*requests)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "return=minimal", req.Prefer)
}

func TestClient_UpsertSetsConflictResolution(t *testing.T) {
	client, requests := newTestServer(t, http.StatusCreated, "")

	err := client.Insert(context.Background(), "subscriptions",
		map[string]string{"user_id": "user-123"},
		InsertOptions{Upsert: true, OnConflict: "user_id"}, nil)
	require.NoError(t, err)

	req := (*requests)[0]
	assert.Equal(t, "on_conflict=user_id", req.Query)
	assert.Equal(t, "return=minimal,resolution=merge-duplicates", req.Prefer)
}

func TestClient_UpdateRequestsRepresentation(t *testing.T) {
	client, requests := newTestServer(t, http.StatusOK, `[{"user_id":"user-123","free_used":2}]`)

	var updated []models.UsageQuota
	err := client.Update(context.Background(), "usage_quotas",
		map[string]string{"user_id": Eq("user-123"), "free_used": Eq("1")},
		map[string]int{"free_used": 2}, &updated)
	require.NoError(t, err)

	req := (*requests)[0]
	assert.Equal(t, http.MethodPatch, req.Method)
	assert.Equal(t, "return=representation", req.Prefer)
	assert.Contains(t, req.Query, "user_id=eq.user-123")
	assert.Contains(t, req.Query, "free_used=eq.1")

	var payload map[string]int
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	assert.Equal(t, 2, payload["free_used"])

	require.Len(t, updated, 1)
	assert.Equal(t, 2, updated[0].FreeUsed)
}

func TestClient_ConflictMapsToSentinel(t *testing.T) {
	client, _ := newTestServer(t, http.StatusConflict, `{"message":"duplicate key"}`)

	err := client.Insert(context.Background(), "webhook_events", map[string]string{"event_id": "evt_1"}, InsertOptions{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConflict))
}

func TestClient_ServerErrorIsNotConflict(t *testing.T) {
	client, _ := newTestServer(t, http.StatusInternalServerError, `{"message":"boom"}`)

	err := client.Select(context.Background(), "storybooks", nil, &[]models.Storybook{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrConflict))
	assert.Contains(t, err.Error(), "500")
}

func TestQuotaRepository_OptimisticRace(t *testing.T) {
	t.Run("empty representation means lost race", func(t *testing.T) {
		client, _ := newTestServer(t, http.StatusOK, `[]`)
		repo := NewRESTQuotaRepository(client, zap.NewNop())

		ok, err := repo.IncrementFree(context.Background(), &models.UsageQuota{UserID: "user-123", FreeTotal: 2, FreeUsed: 1})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("returned row means won race", func(t *testing.T) {
		client, _ := newTestServer(t, http.StatusOK, `[{"user_id":"user-123","free_total":2,"free_used":2}]`)
		repo := NewRESTQuotaRepository(client, zap.NewNop())

		quota := &models.UsageQuota{UserID: "user-123", FreeTotal: 2, FreeUsed: 1}
		ok, err := repo.IncrementFree(context.Background(), quota)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 2, quota.FreeUsed)
	})
}

func TestQuotaRepository_SetDailyGuardsOnPriorValues(t *testing.T) {
	client, requests := newTestServer(t, http.StatusOK, `[{"user_id":"user-123","daily_used":1,"daily_date":"2025-03-10"}]`)
	repo := NewRESTQuotaRepository(client, zap.NewNop())

	quota := &models.UsageQuota{UserID: "user-123", FreeTotal: 2}
	ok, err := repo.SetDaily(context.Background(), quota, 1, "2025-03-10")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2025-03-10", quota.DailyDate)

	// Пустая дата охраняется через is.null, не через eq.
	req := (*requests)[0]
	assert.Contains(t, req.Query, "daily_date=is.null")
	assert.Contains(t, req.Query, "daily_used=eq.0")
}
