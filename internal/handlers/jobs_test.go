package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/carbuddy/internal/auth"
	"github.com/ukydev/carbuddy/internal/middleware"
	"github.com/ukydev/carbuddy/internal/models"
	"github.com/ukydev/carbuddy/internal/scheduler"
)

type fakeRunner struct {
	ran  []string
	last map[string]scheduler.Outcome
	fail bool
}

func (f *fakeRunner) RunOnce(ctx context.Context, job scheduler.Job) scheduler.Outcome {
	f.ran = append(f.ran, job.Name)
	out := scheduler.Outcome{Job: job.Name, Status: scheduler.StatusCompleted, Attempts: 1}
	if f.fail {
		out.Status, out.Error = scheduler.StatusFailed, "boom"
	}
	return out
}

func (f *fakeRunner) Last(name string) (scheduler.Outcome, bool) {
	out, ok := f.last[name]
	return out, ok
}

func newJobRouter(t *testing.T, runner *fakeRunner) (http.Handler, *auth.Service) {
	t.Helper()
	svc := auth.NewService("test-secret", time.Hour)
	jobs := []scheduler.Job{
		{Name: "daily_check", Interval: 24 * time.Hour},
		{Name: "urgent_check", Interval: time.Hour},
	}
	router := NewRouter(RouterConfig{
		Auth:          middleware.NewAuthMiddleware(svc),
		RateLimit:     middleware.NewRateLimitMiddleware(),
		RequestsLimit: 50,
		Vehicles:      &VehicleHandler{},
		Jobs:          NewJobHandler(runner, jobs),
	})
	return router, svc
}

func bearer(t *testing.T, svc *auth.Service, role models.Role) string {
	t.Helper()
	token, err := svc.GenerateToken(&models.User{ID: primitive.NewObjectID(), Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestJobHandler_Run(t *testing.T) {
	runner := &fakeRunner{}
	router, svc := newJobRouter(t, runner)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/jobs/daily_check/run", nil)
	req.Header.Set("Authorization", bearer(t, svc, models.RoleAdmin))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"daily_check"}, runner.ran)
	var out scheduler.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, scheduler.StatusCompleted, out.Status)

	runner.fail = true
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/admin/jobs/urgent_check/run", nil)
	req.Header.Set("Authorization", bearer(t, svc, models.RoleAdmin))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "boom")
}

func TestJobHandler_RunRejects(t *testing.T) {
	runner := &fakeRunner{}
	router, svc := newJobRouter(t, runner)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/jobs/nope/run", nil)
	req.Header.Set("Authorization", bearer(t, svc, models.RoleAdmin))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/admin/jobs/daily_check/run", nil)
	req.Header.Set("Authorization", bearer(t, svc, models.RoleOwner))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Empty(t, runner.ran)
}

func TestJobHandler_List(t *testing.T) {
	finished := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	runner := &fakeRunner{last: map[string]scheduler.Outcome{
		"daily_check": {Job: "daily_check", Status: scheduler.StatusCompleted, Attempts: 2, Finished: finished},
	}}
	router, svc := newJobRouter(t, runner)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/jobs", nil)
	req.Header.Set("Authorization", bearer(t, svc, models.RoleAdmin))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var got []jobStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "daily_check", got[0].Name)
	assert.Equal(t, "24h0m0s", got[0].Interval)
	require.NotNil(t, got[0].Last)
	assert.Equal(t, 2, got[0].Last.Attempts)
	assert.Nil(t, got[1].Last)
}
