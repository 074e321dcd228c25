package feedback

import (
	"context"
)

type Repository interface {
	Create(ctx context.Context, f *Feedback) error
	// List returns matching feedback, newest first. A limit of 0 lists everything.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Feedback, int, error)
}
