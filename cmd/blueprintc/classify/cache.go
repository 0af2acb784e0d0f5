package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	blueprint "github.com/mxkacsa/blueprint"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/internal/ctxlog"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/registry"
)

// cacheKey holds every metadata field the verdict depends on.
type cacheKey struct {
	name   string
	src    string
	kind   registry.Kind
	outs   string
	cont   string
	output bool
}

func keyOf(meta *registry.NodeMetadata) cacheKey {
	return cacheKey{
		name:   meta.Name,
		src:    meta.FunctionSource,
		kind:   meta.Kind,
		outs:   strings.Join(meta.ExecOutputs, "\x00"),
		cont:   meta.Continuation,
		output: meta.HasOutput(),
	}
}

func (k cacheKey) String() string {
	return fmt.Sprintf("%s\x01%s\x01%d\x01%s\x01%s\x01%t", k.name, k.src, k.kind, k.outs, k.cont, k.output)
}

// Cache memoizes classifications across compilations. Lookups take a read
// lock; concurrent misses for the same node type run Classify once, and the
// write lock is held only to insert the result. Template errors are cached
// too, since templates are immutable.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]entry
	group   singleflight.Group
}

type entry struct {
	t   TemplateType
	err error
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]entry)}
}

// Get classifies meta's template and checks it against meta. The key covers
// the template and the declared kind and pins, so registries that share a
// cache never see each other's verdicts.
func (c *Cache) Get(meta *registry.NodeMetadata) (TemplateType, error) {
	key := keyOf(meta)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return e.t, detach(e.err)
	}

	v, _, _ := c.group.Do(key.String(), func() (any, error) {
		t, err := Classify(meta.FunctionSource)
		if err == nil {
			err = CheckAgainst(t, meta)
		}
		var te *blueprint.TemplateError
		if errors.As(err, &te) && te.NodeType == "" {
			te.NodeType = meta.Name
		}
		e := entry{t: t, err: err}
		c.mu.Lock()
		c.entries[key] = e
		c.mu.Unlock()
		return e, nil
	})
	e = v.(entry)
	return e.t, detach(e.err)
}

// detach copies a cached template error so callers may stamp it.
func detach(err error) error {
	var te *blueprint.TemplateError
	if errors.As(err, &te) {
		c := *te
		return &c
	}
	return err
}

// Len returns the number of cached classifications.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Warm classifies every node of reg. It returns the first template error but
// keeps going, so one bad node does not leave the rest cold.
func (c *Cache) Warm(ctx context.Context, reg *registry.Registry) error {
	logger := ctxlog.FromContext(ctx)
	var first error
	for _, name := range reg.Names() {
		meta, _ := reg.Get(name)
		if _, err := c.Get(meta); err != nil {
			logger.WarnContext(ctx, "template rejected", "node_type", name, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	logger.DebugContext(ctx, "classifier cache warmed", "entries", c.Len())
	return first
}
