package repository

import "context"

// Transactor runs fn atomically. Repositories called with the ctx passed to
// fn take part in the same transaction; any error from fn rolls it back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
