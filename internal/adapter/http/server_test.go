package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	httpadapter "github.com/couchcryptid/rail-notice-etl/internal/adapter/http"
	"github.com/couchcryptid/rail-notice-etl/internal/domain"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockSnapshot struct {
	coll *domain.Collection
	err  error
}

func (m *mockSnapshot) Load() (*domain.Collection, error) { return m.coll, m.err }

func newTestServer(t *testing.T, readyErr error) *httpadapter.Server {
	t.Helper()
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, &mockSnapshot{coll: sampleCollection(t)}, zap.NewNop())
}

func sampleCollection(t *testing.T) *domain.Collection {
	t.Helper()
	mk := func(id string, cat domain.Category, group string) *domain.Announcement {
		a := &domain.Announcement{
			ID:             id,
			Title:          "公告 " + id,
			PublishDate:    "2025/05/20",
			Classification: domain.Classification{Category: cat, Keywords: []string{}, EventGroupID: group},
		}
		require.NoError(t, a.Append(domain.VersionRecord{
			ScrapedAt:   time.Date(2025, 5, 20, 10, 0, 0, 0, domain.Taipei),
			ContentHash: "md5:0",
		}))
		return a
	}
	c, err := domain.NewCollection(
		mk("1", domain.CategorySuspension, "20250520_落石"),
		mk("2", domain.CategoryResumption, "20250520_落石"),
		mk("3", domain.CategoryGeneralOperation, "20250520_General"),
	)
	require.NoError(t, err)
	return c
}

func get(t *testing.T, srv *httpadapter.Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(t, newTestServer(t, fmt.Errorf("not ready yet")), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAnnouncementsList(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   []string
	}{
		{"all", "/announcements", []string{"1", "2", "3"}},
		{"by category", "/announcements?category=Disruption_Resumption", []string{"2"}},
		{"by event group", "/announcements?event_group_id=20250520_%E8%90%BD%E7%9F%B3", []string{"1", "2"}},
		{"both", "/announcements?category=Disruption_Suspension&event_group_id=20250520_General", []string{}},
	}
	srv := newTestServer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, srv, tt.target)
			require.Equal(t, http.StatusOK, rec.Code)

			var body []struct {
				ID      string `json:"id"`
				History []any  `json:"version_history"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			ids := []string{}
			for _, a := range body {
				ids = append(ids, a.ID)
				assert.Len(t, a.History, 1)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestAnnouncementsList_UnknownCategory(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/announcements?category=Nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnnouncementGet(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := get(t, srv, "/announcements/2")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2", body["id"])
	assert.Equal(t, "公告 2", body["title"])

	rec = get(t, srv, "/announcements/404")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnnouncements_StoreUnavailable(t *testing.T) {
	snap := &mockSnapshot{err: fmt.Errorf("%w: decode master.json", domain.ErrCorruptState)}
	srv := httpadapter.NewServer(":0", &mockReadiness{}, snap, zap.NewNop())
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv, "/announcements").Code)

	snap.err = errors.New("permission denied")
	assert.Equal(t, http.StatusInternalServerError, get(t, srv, "/announcements/1").Code)
}
