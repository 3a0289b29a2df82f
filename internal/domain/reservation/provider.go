package reservation

import "context"

// Notifier delivers operator messages. Implementations are best-effort: the
// reservation flow logs a failed send and carries on.
type Notifier interface {
	Name() string
	Ping(ctx context.Context) error
	SendMessage(ctx context.Context, text string) error
	SendPhoto(ctx context.Context, png []byte) error
}

// CodeRetriever looks for the confirmation code the booking site e-mails after
// a submission. An empty code with a nil error means "not arrived yet"; callers
// poll.
type CodeRetriever interface {
	Name() string
	Ping(ctx context.Context) error
	FetchCode(ctx context.Context) (string, error)
}
