package sqlmap

import (
	"context"
	"fmt"

	"github.com/syssam/sqlmap/dialect"
)

// Tx is a client bound to one database transaction.
type Tx struct {
	*Client
	dtx dialect.Tx
}

// Tx begins a transaction and returns a client view bound to it.
func (c *Client) Tx(ctx context.Context) (*Tx, error) {
	if c.inTx {
		return nil, ErrTxStarted
	}
	dtx, err := c.drv.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlmap: starting a transaction: %w", err)
	}
	clone := *c
	clone.eng = c.eng.withTx(dtx)
	clone.inTx = true
	return &Tx{Client: &clone, dtx: dtx}, nil
}

// Commit commits the transaction.
func (tx *Tx) Commit() error { return tx.dtx.Commit() }

// Rollback rolls the transaction back.
func (tx *Tx) Rollback() error { return tx.dtx.Rollback() }

// WithTx runs fn inside a transaction, committing on nil and rolling back
// on error or panic.
func (c *Client) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := c.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if v := recover(); v != nil {
			tx.Rollback()
			panic(v)
		}
	}()
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = fmt.Errorf("%w: %v", err, &RollbackError{Err: rerr})
		}
		return err
	}
	return tx.Commit()
}
