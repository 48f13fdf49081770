package registry

import "context"

// NoRequestID marks a task that has not been registered with the server yet.
const NoRequestID int64 = -1

// CancellationStrategy tears down an in-flight upload.
type CancellationStrategy interface {
	// Abort interrupts the running transfer.
	Abort()
	// NotifyServer tells the server to discard the upload identified by requestID.
	NotifyServer(ctx context.Context, requestID int64) error
}

// Task is an in-flight upload of one entity.
type Task struct {
	Key   string
	Title string
	// Percent stays below 100 while the upload is running; completion is signalled by removal.
	Percent   float64
	RequestID int64
	// Size is the number of bytes transmitted so far.
	Size         int64
	Cancellation CancellationStrategy
	IsCancel     bool
	UpdateEvent  string
}
