package usage

import "context"

// Counters provides read access to the persisted monthly usage counters.
type Counters interface {
	Tokens(ctx context.Context) (int64, error)
	Requests(ctx context.Context) (int64, error)
}
