package interfaces

import "context"

// -----------------------------------------------------------------------------
// INotifier accepts alert text for asynchronous delivery. Enqueue never blocks
// and never reports delivery failures to the caller.
// -----------------------------------------------------------------------------

type INotifier interface {
	Enqueue(text string)
}

// -----------------------------------------------------------------------------
// ISender performs one delivery attempt to the messaging endpoint.
// -----------------------------------------------------------------------------

type ISender interface {
	Send(ctx context.Context, text string) error
}
