package v1

import (
	"net/http"
	"time"

	"github.com/framecast/framecast/pkg/server/api"
)

// QueueStatusHandler handles GET /api/v1/queue/status
//
// Response format:
//
//	{"total": 4, "pending": 1, "processing": 2, "completed": 1, "failed": 0, "cancelled": 0, "max_concurrent": 2}
func QueueStatusHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, deps.Queue.QueueStatus())
	}
}

// QueueStatisticsHandler handles GET /api/v1/queue/statistics
//
// Same counters as /queue/status plus average_duration_seconds and
// total_duration_seconds over completed jobs.
func QueueStatisticsHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, deps.Queue.Statistics())
	}
}

// PauseQueueHandler handles POST /api/v1/queue/pause
//
// Stops promotion of pending jobs; running jobs finish. Responds with the
// queue status, "paused" set.
func PauseQueueHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Queue.Pause()
		api.WriteJSON(w, http.StatusOK, deps.Queue.QueueStatus())
	}
}

// ResumeQueueHandler handles POST /api/v1/queue/resume
func ResumeQueueHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Queue.Resume()
		api.WriteJSON(w, http.StatusOK, deps.Queue.QueueStatus())
	}
}

// CacheStatsResponse is returned by GET /api/v1/cache/stats.
type CacheStatsResponse struct {
	Enabled   bool       `json:"enabled"`
	Backend   string     `json:"backend,omitempty"`
	Entries   int        `json:"entries"`
	TotalSize int64      `json:"total_size"`
	Hits      int64      `json:"hits"`
	Misses    int64      `json:"misses"`
	HitRate   float64    `json:"hit_rate"`
	Oldest    *time.Time `json:"oldest,omitempty"`
	Newest    *time.Time `json:"newest,omitempty"`
}

// CacheStatsHandler handles GET /api/v1/cache/stats
//
// Answers {"enabled": false} when caching is disabled.
func CacheStatsHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Cache == nil {
			api.WriteJSON(w, http.StatusOK, CacheStatsResponse{})
			return
		}

		ctx, cancel := deps.Config.WithTimeout(r.Context())
		defer cancel()

		st, err := deps.Cache.Stats(ctx)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, CacheStatsResponse{
			Enabled:   true,
			Backend:   st.Backend,
			Entries:   st.Entries,
			TotalSize: st.TotalSize,
			Hits:      st.Hits,
			Misses:    st.Misses,
			HitRate:   st.HitRate(),
			Oldest:    st.Oldest,
			Newest:    st.Newest,
		})
	}
}
