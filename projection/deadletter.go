package projection

import (
	"context"
	"time"

	es "github.com/ebbtide-io/ebb-events-go"
)

// DeadLetter preserves an event a projection could not apply, for later
// reprocessing. The event itself remains in the log; the record carries
// enough to replay the handler without rescanning the feed.
type DeadLetter struct {
	Projection string           `json:"projection"`
	Event      es.RecordedEvent `json:"event"`
	Attempts   uint             `json:"attempts"`
	LastError  string           `json:"lastError"`
	FailedAt   time.Time        `json:"failedAt"`
}

func NewDeadLetter(projection string, event es.RecordedEvent, attempts uint, cause error) DeadLetter {
	return DeadLetter{
		Projection: projection,
		Event:      event,
		Attempts:   attempts,
		LastError:  cause.Error(),
		FailedAt:   time.Now().UTC(),
	}
}

type DeadLetterStore interface {
	Record(ctx context.Context, letter DeadLetter) error
	Pending(ctx context.Context, projection string) ([]DeadLetter, error)
}
