package specification

import "gorm.io/gorm"

// Specification narrows a query. Specs compose by applying them in order.
type Specification interface {
	Apply(db *gorm.DB) *gorm.DB
}

// Apply runs every spec against db. Nil specs are skipped.
func Apply(db *gorm.DB, specs ...Specification) *gorm.DB {
	for _, s := range specs {
		if s != nil {
			db = s.Apply(db)
		}
	}
	return db
}
