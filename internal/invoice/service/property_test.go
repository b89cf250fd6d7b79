package service

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Whatever sequence of creates, updates and deletes runs, stock ends at the
// initial level minus what live invoices hold.
func TestStockIsConserved(t *testing.T) {
	f := setupInvoiceService(t)
	products := []snowflake.ID{1, 2, 3}
	initial := map[snowflake.ID]int64{1: 20, 2: 15, 3: 8}
	for _, id := range products {
		f.seedProduct(t, id, initial[id])
	}

	rng := rand.New(rand.NewSource(42))
	live := map[string]map[snowflake.ID]int64{}

	randomLines := func() ([]invoicedomain.LineItemInput, map[snowflake.ID]int64) {
		n := 1 + rng.Intn(3)
		lines := make([]invoicedomain.LineItemInput, 0, n)
		held := map[snowflake.ID]int64{}
		for i := 0; i < n; i++ {
			id := products[rng.Intn(len(products))]
			qty := int64(1 + rng.Intn(4))
			lines = append(lines, line(id, qty))
			held[id] += qty
		}
		return lines, held
	}

	for step := 0; step < 60; step++ {
		switch op := rng.Intn(3); {
		case op == 0 || len(live) == 0:
			lines, held := randomLines()
			view, err := f.svc.Create(f.ctx, createReq(lines...))
			if err != nil {
				require.ErrorIs(t, err, invoicedomain.ErrStockViolation)
				continue
			}
			live[view.ID] = held
		case op == 1:
			id := anyKey(rng, live)
			lines, held := randomLines()
			_, err := f.svc.Update(f.ctx, invoicedomain.UpdateInvoiceRequest{ID: id, Items: lines})
			if err != nil {
				require.ErrorIs(t, err, invoicedomain.ErrStockViolation)
				continue
			}
			live[id] = held
		default:
			id := anyKey(rng, live)
			require.NoError(t, f.svc.Delete(f.ctx, id))
			delete(live, id)
		}

		for _, pid := range products {
			var held int64
			for _, inv := range live {
				held += inv[pid]
			}
			stock := f.stock(t, pid)
			require.Equal(t, initial[pid]-held, stock, "product %d after step %d", pid, step)
			require.GreaterOrEqual(t, stock, int64(0))
		}
	}
}

func TestDeleteThenRecreateMatchesKeepingTheInvoice(t *testing.T) {
	f := setupInvoiceService(t)
	f.seedProduct(t, 1, 10)
	f.seedProduct(t, 2, 10)
	lines := []invoicedomain.LineItemInput{line(1, 3), line(2, 1)}

	view, err := f.svc.Create(f.ctx, createReq(lines...))
	require.NoError(t, err)
	kept1, kept2 := f.stock(t, 1), f.stock(t, 2)

	require.NoError(t, f.svc.Delete(f.ctx, view.ID))
	again, err := f.svc.Create(f.ctx, createReq(lines...))
	require.NoError(t, err)

	assert.Equal(t, kept1, f.stock(t, 1))
	assert.Equal(t, kept2, f.stock(t, 2))
	assert.NotEqual(t, view.ID, again.ID)
	assert.NotEqual(t, view.Number, again.Number)
}

func anyKey(rng *rand.Rand, m map[string]map[snowflake.ID]int64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys[rng.Intn(len(keys))]
}
