// Package option provides composable gorm query modifiers used by the
// generic repository.
package option

import (
	"strings"

	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// QuerySortBy restricts sorting to an allow-list of columns.
type QuerySortBy struct {
	Column string
	Desc   bool
	Allow  map[string]bool
}

// WithSortBy orders results by an allowed column, defaulting to created_at desc.
func WithSortBy(sort QuerySortBy) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		column := strings.TrimSpace(sort.Column)
		if column == "" || (sort.Allow != nil && !sort.Allow[column]) {
			column = "created_at"
		}
		direction := "desc"
		if !sort.Desc && column != "created_at" {
			direction = "asc"
		}
		return db.Order(column + " " + direction + ", id desc")
	})
}
