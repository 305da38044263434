package mirror

import (
	"errors"
	"time"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotImplemented = errors.New("not implemented")
)

// Task is one server-mirroring call. Tasks are plain data so they can sit in
// a durable queue between process restarts.
type Task struct {
	ID              string    `json:"id"`
	Action          string    `json:"action"`
	EstimateID      string    `json:"estimateId,omitempty"`
	RoomID          string    `json:"roomId,omitempty"`
	ProductID       string    `json:"productId,omitempty"`
	OldProductID    string    `json:"oldProductId,omitempty"`
	ParentProductID string    `json:"parentProductId,omitempty"`
	Name            string    `json:"name,omitempty"`
	Width           float64   `json:"width,omitempty"`
	Length          float64   `json:"length,omitempty"`
	EnqueuedAt      time.Time `json:"enqueuedAt"`
}

// Detached is returned by Dispatcher.Detach. The caller's own result never
// depends on the task: it is not awaited, and its failure is only logged.
// Done closes once the task has run or been dropped.
type Detached struct {
	TaskID string
	Queued bool
	done   <-chan struct{}
}

func (d Detached) Done() <-chan struct{} {
	if d.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return d.done
}
