package domain

import "context"

// Provider is the interface all completion providers must implement.
//
// ChatStream issues one streaming completion over the given history and
// invokes onDelta once per incremental text fragment, in arrival order, on
// the calling goroutine. It returns after the stream completes or fails;
// a non-nil error means the turn produced no usable completion.
type Provider interface {
	Name() string
	ChatStream(ctx context.Context, messages []ChatMessage, onDelta func(string)) error
	Healthy(ctx context.Context) error
}
