package schedule

import "context"

// Repository persists schedules. Get and Update return an apperr.NotFoundError for
// unknown ids; List returns schedules ordered by creation time.
type Repository interface {
	Create(ctx context.Context, s *Schedule) error
	Get(ctx context.Context, id string) (*Schedule, error)
	List(ctx context.Context, q Query) ([]*Schedule, error)
	Update(ctx context.Context, s *Schedule) error
	ActivePatients(ctx context.Context) ([]string, error)
}
