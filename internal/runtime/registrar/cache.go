package registrar

import (
	"context"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/drblury/reactorflow/internal/runtime/lookup"
)

// Cache memoises a Resolver for the life of the process. Entries are only
// dropped through Invalidate, which the send path calls when publishing to a
// cached destination fails.
type Cache struct {
	resolver Resolver
	entries  *xsync.MapOf[string, lookup.Entry]
}

func NewCache(resolver Resolver) *Cache {
	return &Cache{
		resolver: resolver,
		entries:  xsync.NewMapOf[string, lookup.Entry](),
	}
}

// Lookup returns the cached entry for name or resolves and caches it.
// Failures are not cached.
func (c *Cache) Lookup(ctx context.Context, name string) (lookup.Entry, error) {
	if e, ok := c.entries.Load(name); ok {
		return e, nil
	}
	e, err := c.resolver.Lookup(ctx, name)
	if err != nil {
		return lookup.Entry{}, err
	}
	actual, _ := c.entries.LoadOrStore(name, e)
	return actual, nil
}

// Invalidate forgets name so the next Lookup resolves it again.
func (c *Cache) Invalidate(name string) {
	c.entries.Delete(name)
}

// Entries returns the cached entries ordered by name.
func (c *Cache) Entries() []lookup.Entry {
	out := make([]lookup.Entry, 0, c.entries.Size())
	c.entries.Range(func(_ string, e lookup.Entry) bool {
		out = append(out, e)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
