package database

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type contextKey string

const (
	// TxKey is the context key for the transaction opened by WithTx or WithSnapshot.
	TxKey contextKey = "tx"
)

// GetTx retrieves the transaction bound to ctx.
// Returns nil and false if not present.
func GetTx(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(TxKey).(pgx.Tx)
	return tx, ok
}

// SetTx binds tx to ctx so repositories called with the returned context use it.
func SetTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, TxKey, tx)
}

// WithoutTx returns a copy of ctx with no transaction bound, so queries made with
// it go to the pool even when ctx came from inside WithTx.
func WithoutTx(ctx context.Context) context.Context {
	return context.WithValue(ctx, TxKey, nil)
}
