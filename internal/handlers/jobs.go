package handlers

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/carbuddy/internal/scheduler"
)

// JobRunner runs scheduled jobs on demand.
type JobRunner interface {
	RunOnce(ctx context.Context, job scheduler.Job) scheduler.Outcome
	Last(name string) (scheduler.Outcome, bool)
}

// JobHandler lets admins inspect and trigger the agent's periodic jobs.
type JobHandler struct {
	runner JobRunner
	jobs   map[string]scheduler.Job
	names  []string
}

// NewJobHandler creates a job handler for jobs.
func NewJobHandler(runner JobRunner, jobs []scheduler.Job) *JobHandler {
	h := &JobHandler{runner: runner, jobs: make(map[string]scheduler.Job, len(jobs))}
	for _, j := range jobs {
		h.jobs[j.Name] = j
		h.names = append(h.names, j.Name)
	}
	return h
}

type jobStatus struct {
	Name     string             `json:"name"`
	Interval string             `json:"interval"`
	Last     *scheduler.Outcome `json:"last,omitempty"`
}

// List handles GET /api/admin/jobs.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	out := make([]jobStatus, 0, len(h.names))
	for _, name := range h.names {
		st := jobStatus{Name: name, Interval: h.jobs[name].Interval.String()}
		if last, ok := h.runner.Last(name); ok {
			st.Last = &last
		}
		out = append(out, st)
	}
	writeJSON(w, http.StatusOK, out)
}

// Run handles POST /api/admin/jobs/{name}/run. The job runs synchronously
// with its own timeout and retry policy.
func (h *JobHandler) Run(w http.ResponseWriter, r *http.Request) {
	job, ok := h.jobs[r.PathValue("name")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}

	log.WithField("job", job.Name).Info("Job triggered manually")
	outcome := h.runner.RunOnce(r.Context(), job)
	code := http.StatusOK
	if outcome.Status != scheduler.StatusCompleted {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, outcome)
}
