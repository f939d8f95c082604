package repository

import (
	"context"

	"github.com/teleora/teleora/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a thin generic persistence layer over gorm for plain CRUD
// paths. Hot paths with conflict clauses use raw statements instead.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, resourceID string, resource any) error
	Delete(ctx context.Context, resourceID string) error
	Count(ctx context.Context, query *T) (int64, error)
}
