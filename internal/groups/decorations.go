package groups

import "sync"

// Decoration is presentation data attached to a model id by the UI layer.
type Decoration struct {
	Icon  string
	Color string
}

// Decorations 按模型 ID 索引的展示信息，不参与持久化
// Decorations is a model-id keyed lookup table for presentation data. It
// is populated by the UI and never serialized with domain records.
type Decorations struct {
	mu sync.RWMutex
	m  map[string]Decoration
}

// Set stores the decoration for modelID.
func (d *Decorations) Set(modelID string, dec Decoration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.m == nil {
		d.m = make(map[string]Decoration)
	}
	d.m[modelID] = dec
}

// Get returns the decoration for modelID.
func (d *Decorations) Get(modelID string) (Decoration, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dec, ok := d.m[modelID]
	return dec, ok
}
