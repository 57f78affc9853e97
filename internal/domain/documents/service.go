package documents

import (
	"context"

	"github.com/ins/ins/pkg/pagination"
)

type Service struct {
	catalog Catalog
}

func NewService(catalog Catalog) *Service {
	return &Service{catalog: catalog}
}

// Search returns the catalog documents whose name contains q, plus the
// number of matches before paging.
func (s *Service) Search(ctx context.Context, q string, p pagination.Params) ([]Document, int, error) {
	all, err := s.catalog.List(ctx)
	if err != nil {
		return nil, 0, err
	}
	matched := Filter(all, q)
	return pagination.Apply(matched, p), len(matched), nil
}

func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	return s.catalog.Get(ctx, id)
}

// All returns the whole catalog.
func (s *Service) All(ctx context.Context) ([]Document, error) {
	return s.catalog.List(ctx)
}

// Filter keeps the documents matching q, preserving order.
func Filter(docs []Document, q string) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if d.Matches(q) {
			out = append(out, d)
		}
	}
	return out
}
