package v1

import (
	"net/http"
	"sync/atomic"

	"github.com/framecast/framecast/pkg/server/api"
)

// ReadinessResponse is the body of /readyz.
type ReadinessResponse struct {
	Ready      bool `json:"ready"`
	Pending    int  `json:"pending"`
	Processing int  `json:"processing"`
}

// ReadyzHandler returns 200 when server is ready, 503 otherwise.
//
// The ready flag is set by the app runtime once the HTTP listener and the
// dispatch loop are up. The body also carries the queue depth so load
// balancers can prefer idle instances.
func ReadyzHandler(ready *atomic.Bool, q api.JobQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := ReadinessResponse{Ready: ready != nil && ready.Load()}
		if q != nil {
			st := q.QueueStatus()
			resp.Pending = st.Pending
			resp.Processing = st.Processing
		}
		status := http.StatusOK
		if !resp.Ready {
			status = http.StatusServiceUnavailable
		}
		api.WriteJSON(w, status, resp)
	}
}
