package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context carries the request context together with an optional transaction
// handle. Repos fall back to their own *gorm.DB when Tx is nil, so callers can
// compose repo calls inside one transaction or run them standalone.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}
