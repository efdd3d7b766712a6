package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/framecast/framecast/pkg/event"
)

// ArchivedEvents are the bus events that trigger a snapshot write.
var ArchivedEvents = []event.Name{event.JobAdded, event.JobProgress, event.JobUpdated}

// Archiver copies job snapshots from the event bus into a Backend. It only
// reads events and never calls back into the queue.
type Archiver struct {
	backend Backend
	timeout time.Duration
	logger  zerolog.Logger
	sub     *event.Subscription
}

// NewArchiver returns an archiver writing to backend.
func NewArchiver(backend Backend) *Archiver {
	return &Archiver{
		backend: backend,
		timeout: 5 * time.Second,
		logger:  log.With().Str("component", "storage").Logger(),
	}
}

// Attach subscribes the archiver to bus. Calling it twice replaces the
// earlier subscription.
func (a *Archiver) Attach(bus *event.Bus) {
	a.Detach()
	a.sub = bus.Subscribe(a.handle, ArchivedEvents...)
}

// Detach stops archiving. Pending events are dropped.
func (a *Archiver) Detach() {
	if a.sub != nil {
		a.sub.Unsubscribe()
		a.sub = nil
	}
}

func (a *Archiver) handle(ctx context.Context, e event.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()
	if err := a.backend.Put(ctx, e.Job); err != nil {
		a.logger.Warn().Err(err).Str("job_id", e.Job.ID).Str("event", string(e.Name)).Msg("Failed to archive job snapshot")
	}
}
