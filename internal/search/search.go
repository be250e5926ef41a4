// Package search keeps a per-owner full-text index over captured signals.
// Indexes live in memory only: they are fed as signals arrive and rebuilt
// from the store on the first query after a restart.
package search

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/blevesearch/bleve"

	"github.com/earshotfm/earshot/internal/store"
)

const (
	defaultSearchLimit = 20
	rebuildLimit       = 1000
	snippetRunes       = 240
)

// Lister loads an owner's signals when an index must be rebuilt.
type Lister interface {
	ListSignals(ctx context.Context, ownerID string, status store.SignalStatus, limit int) ([]store.Signal, error)
}

// Hit is one search result.
type Hit struct {
	SignalID string  `json:"signal_id"`
	Title    string  `json:"title,omitempty"`
	Snippet  string  `json:"snippet,omitempty"`
	Score    float64 `json:"score"`
}

// signalDoc is the shape handed to bleve for indexing.
type signalDoc struct {
	Title      string   `json:"title"`
	Topics     []string `json:"topics"`
	RawContent string   `json:"raw_content"`
}

type signalMeta struct {
	title   string
	content string
}

type ownerIndex struct {
	mu    sync.RWMutex
	index bleve.Index
	meta  map[string]signalMeta
}

// Index maintains one in-memory index per owner.
type Index struct {
	lister Lister
	mu     sync.RWMutex
	owners map[string]*ownerIndex
}

// New builds an empty Index that rebuilds owner indexes from lister on
// demand.
func New(lister Lister) *Index {
	return &Index{lister: lister, owners: map[string]*ownerIndex{}}
}

// Add feeds a freshly captured signal into its owner's index. If the owner
// has no index yet nothing happens: the first query rebuilds from the store,
// which already holds the signal.
func (x *Index) Add(sig store.Signal) error {
	x.mu.RLock()
	oi := x.owners[sig.OwnerID]
	x.mu.RUnlock()
	if oi == nil {
		return nil
	}
	return oi.add(sig)
}

// Remove drops one signal from its owner's index.
func (x *Index) Remove(ownerID, signalID string) error {
	x.mu.RLock()
	oi := x.owners[ownerID]
	x.mu.RUnlock()
	if oi == nil {
		return nil
	}
	return oi.remove(signalID)
}

// DropOwner discards an owner's index entirely, e.g. when the user is
// deleted. A later query would rebuild from whatever the store still holds.
func (x *Index) DropOwner(ownerID string) {
	x.mu.Lock()
	delete(x.owners, ownerID)
	x.mu.Unlock()
}

// Search runs a query-string search over the owner's signals, rebuilding the
// index first if this is the first query since boot.
func (x *Index) Search(ctx context.Context, ownerID, q string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	oi, err := x.ensure(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return oi.search(q, limit)
}

// ensure returns the owner's index, rebuilding it from the store when absent.
// When two rebuilds race, the first one in wins and the loser is discarded.
func (x *Index) ensure(ctx context.Context, ownerID string) (*ownerIndex, error) {
	x.mu.RLock()
	oi := x.owners[ownerID]
	x.mu.RUnlock()
	if oi != nil {
		return oi, nil
	}

	built, err := x.rebuild(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if existing := x.owners[ownerID]; existing != nil {
		return existing, nil
	}
	x.owners[ownerID] = built
	return built, nil
}

func (x *Index) rebuild(ctx context.Context, ownerID string) (*ownerIndex, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("new index: %w", err)
	}
	oi := &ownerIndex{index: idx, meta: map[string]signalMeta{}}

	signals, err := x.lister.ListSignals(ctx, ownerID, "", rebuildLimit)
	if err != nil {
		return nil, fmt.Errorf("list signals for rebuild: %w", err)
	}
	for _, sig := range signals {
		if sig.Status == store.SignalSkipped {
			continue
		}
		if err := oi.add(sig); err != nil {
			return nil, fmt.Errorf("index signal %s: %w", sig.ID, err)
		}
	}
	return oi, nil
}

func (o *ownerIndex) add(sig store.Signal) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	doc := signalDoc{RawContent: sig.RawContent, Topics: sig.Topics}
	if sig.Title != nil {
		doc.Title = *sig.Title
	}
	o.meta[sig.ID] = signalMeta{title: doc.Title, content: sig.RawContent}
	return o.index.Index(sig.ID, doc)
}

func (o *ownerIndex) remove(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.meta, id)
	return o.index.Delete(id)
}

func (o *ownerIndex) search(q string, limit int) ([]Hit, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	query := bleve.NewQueryStringQuery(q)
	req := bleve.NewSearchRequestOptions(query, limit, 0, false)
	res, err := o.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	out := make([]Hit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		m := o.meta[hit.ID]
		out = append(out, Hit{
			SignalID: hit.ID,
			Title:    m.title,
			Snippet:  snippet(m.content),
			Score:    hit.Score,
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func snippet(s string) string {
	if utf8.RuneCountInString(s) <= snippetRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:snippetRunes]) + "..."
}
