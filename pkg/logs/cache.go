package logs

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/modoterra/wharf/pkg/logs/highlight"
)

// Row is one terminal row ready for styling: shaped text, highlight spans,
// and the selection byte bounds the renderer overlays last.
type Row struct {
	Seq    uint64
	Text   string
	Spans  []highlight.Span
	Marker bool

	// Offset is the row's index within its line: 0 is the line itself,
	// 1..n are expanded block rows below it.
	Offset int

	// Selection bounds within Text, or -1 when the row carries none.
	// These are set per render, never cached.
	SelFrom int
	SelTo   int
}

type cacheKey struct {
	seq      uint64
	expanded bool
	epoch    uint64
}

// RenderCache memoizes shaped rows per line. The key carries the expansion
// state and the filter epoch, so toggling either simply misses instead of
// serving stale rows; old entries age out through the LRU.
type RenderCache struct {
	lru *lru.Cache[cacheKey, []Row]
}

func NewRenderCache(size int) *RenderCache {
	if size < 1 {
		size = 1
	}
	c, _ := lru.New[cacheKey, []Row](size)
	return &RenderCache{lru: c}
}

func (c *RenderCache) Get(seq uint64, expanded bool, epoch uint64) ([]Row, bool) {
	return c.lru.Get(cacheKey{seq: seq, expanded: expanded, epoch: epoch})
}

func (c *RenderCache) Add(seq uint64, expanded bool, epoch uint64, rows []Row) {
	c.lru.Add(cacheKey{seq: seq, expanded: expanded, epoch: epoch}, rows)
}

func (c *RenderCache) Purge() {
	c.lru.Purge()
}

func (c *RenderCache) Len() int {
	return c.lru.Len()
}
