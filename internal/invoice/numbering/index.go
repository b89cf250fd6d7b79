package numbering

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/cache"
)

// Entry places one invoice in its organization's creation order.
type Entry struct {
	InvoiceID snowflake.ID
	CreatedAt time.Time
	Sequence  int64
}

// Index caches the creation order of each organization's invoices. It is
// only ever extended by committed creates and pruned by committed deletes;
// anything it is missing is recovered by Replace from the database.
type Index interface {
	Lookup(ctx context.Context, orgID, invoiceID snowflake.ID) (Entry, bool, error)
	Append(ctx context.Context, orgID snowflake.ID, entry Entry) error
	Remove(ctx context.Context, orgID, invoiceID snowflake.ID) error
	Replace(ctx context.Context, orgID snowflake.ID, entries []Entry) error
	Backend() string
}

const DefaultIndexTTL = 30 * time.Minute

type orgOrder struct {
	mu      sync.RWMutex
	entries map[snowflake.ID]Entry
}

type memoryIndex struct {
	orgs cache.Cache[snowflake.ID, *orgOrder]
	ttl  time.Duration
}

// NewMemoryIndex keeps orderings in process memory, each org expiring ttl
// after its last full load.
func NewMemoryIndex(ttl time.Duration) Index {
	return &memoryIndex{
		orgs: cache.NewTTLCache[snowflake.ID, *orgOrder](),
		ttl:  ttl,
	}
}

func (m *memoryIndex) Backend() string { return "memory" }

func (m *memoryIndex) Lookup(_ context.Context, orgID, invoiceID snowflake.ID) (Entry, bool, error) {
	order, ok := m.orgs.Get(orgID)
	if !ok {
		return Entry{}, false, nil
	}
	order.mu.RLock()
	defer order.mu.RUnlock()
	entry, ok := order.entries[invoiceID]
	return entry, ok, nil
}

// Append is a no-op for an org that is not loaded; the next load reads the
// committed row anyway.
func (m *memoryIndex) Append(_ context.Context, orgID snowflake.ID, entry Entry) error {
	order, ok := m.orgs.Get(orgID)
	if !ok {
		return nil
	}
	order.mu.Lock()
	order.entries[entry.InvoiceID] = entry
	order.mu.Unlock()
	return nil
}

func (m *memoryIndex) Remove(_ context.Context, orgID, invoiceID snowflake.ID) error {
	order, ok := m.orgs.Get(orgID)
	if !ok {
		return nil
	}
	order.mu.Lock()
	delete(order.entries, invoiceID)
	order.mu.Unlock()
	return nil
}

func (m *memoryIndex) Replace(_ context.Context, orgID snowflake.ID, entries []Entry) error {
	order := &orgOrder{entries: make(map[snowflake.ID]Entry, len(entries))}
	for _, entry := range entries {
		order.entries[entry.InvoiceID] = entry
	}
	m.orgs.Set(orgID, order, m.ttl)
	return nil
}
