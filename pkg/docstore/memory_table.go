package docstore

import "sync"

// MemoryTable keeps a collection in process memory. It is used by tests and
// by ephemeral runs that do not need persistence.
type MemoryTable struct {
	mu   sync.RWMutex
	docs []Document
}

// NewMemoryTable initializes an empty in-memory table.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{}
}

func (t *MemoryTable) Get(field string, value any) (Document, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, doc := range t.docs {
		if matches(doc, field, value) {
			return clone(doc), true, nil
		}
	}
	return nil, false, nil
}

func (t *MemoryTable) Search(field string, value any) ([]Document, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Document
	for _, doc := range t.docs {
		if matches(doc, field, value) {
			out = append(out, clone(doc))
		}
	}
	return out, nil
}

func (t *MemoryTable) All() ([]Document, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Document, 0, len(t.docs))
	for _, doc := range t.docs {
		out = append(out, clone(doc))
	}
	return out, nil
}

func (t *MemoryTable) Insert(doc Document) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.docs = append(t.docs, clone(doc))
	return nil
}

func (t *MemoryTable) Update(fields Document, field string, value any) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for i, doc := range t.docs {
		if !matches(doc, field, value) {
			continue
		}
		merged := clone(doc)
		for k, v := range clone(fields) {
			merged[k] = v
		}
		t.docs[i] = merged
		count++
	}
	return count, nil
}

func (t *MemoryTable) Remove(field string, value any) ([]Document, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var removed []Document
	kept := t.docs[:0]
	for _, doc := range t.docs {
		if matches(doc, field, value) {
			removed = append(removed, clone(doc))
			continue
		}
		kept = append(kept, doc)
	}
	t.docs = kept
	return removed, nil
}

func (t *MemoryTable) Truncate() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.docs = nil
	return nil
}
