package patient

import (
	"context"
)

// Repository stores patient records. Implementations hand out copies, so
// callers never share a record with the store.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	Get(ctx context.Context, id string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Patient, error)
}
