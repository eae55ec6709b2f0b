package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

// The sync engine applies pulled documents outside any transaction and
// passes a nil tx. Every tx-taking repository method must fall back to
// the base connection in that case instead of dereferencing nil.
func TestConn_NilTxFallsBackToBase(t *testing.T) {
	base := &gorm.DB{}
	tx := &gorm.DB{}

	t.Run("product", func(t *testing.T) {
		r := &productRepo{db: base}
		assert.Same(t, base, r.conn(nil))
		assert.Same(t, tx, r.conn(tx))
	})

	t.Run("customer", func(t *testing.T) {
		r := &customerRepo{db: base}
		assert.Same(t, base, r.conn(nil))
		assert.Same(t, tx, r.conn(tx))
	})

	t.Run("invoice", func(t *testing.T) {
		r := &invoiceRepo{db: base}
		assert.Same(t, base, r.conn(nil))
		assert.Same(t, tx, r.conn(tx))
	})

	t.Run("changelog", func(t *testing.T) {
		r := &changeLogRepo{db: base}
		assert.Same(t, base, r.conn(nil))
		assert.Same(t, tx, r.conn(tx))
	})
}
