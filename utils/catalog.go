package utils

import (
	"errors"
	"sync"

	"songlead/models"

	"gorm.io/gorm"
)

// SequenceCatalog is a read-through cache over sequence definitions, keyed
// by trigger. Negative lookups are cached too so a stale trigger on a lead
// does not hammer the store every tick.
type SequenceCatalog struct {
	db *gorm.DB

	mu      sync.RWMutex
	entries map[string]*models.Sequence // nil value = cached miss
}

func NewSequenceCatalog(db *gorm.DB) *SequenceCatalog {
	return &SequenceCatalog{
		db:      db,
		entries: make(map[string]*models.Sequence),
	}
}

// Get returns the sequence definition for a trigger, or nil when no
// definition exists. Only store errors are reported as errors.
func (c *SequenceCatalog) Get(trigger string) (*models.Sequence, error) {
	if trigger == "" {
		return nil, nil
	}

	c.mu.RLock()
	seq, ok := c.entries[trigger]
	c.mu.RUnlock()
	if ok {
		return seq, nil
	}

	var loaded models.Sequence
	err := c.db.Where("trigger = ?", trigger).First(&loaded).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.store(trigger, nil)
		return nil, nil
	case err != nil:
		return nil, err
	}

	c.store(trigger, &loaded)
	return &loaded, nil
}

func (c *SequenceCatalog) store(trigger string, seq *models.Sequence) {
	c.mu.Lock()
	c.entries[trigger] = seq
	c.mu.Unlock()
}

// Invalidate drops one trigger from the cache so the next Get re-queries
// the store. Used whenever a definition is created, updated or deleted.
func (c *SequenceCatalog) Invalidate(trigger string) {
	c.mu.Lock()
	delete(c.entries, trigger)
	c.mu.Unlock()
}

// Flush empties the whole cache.
func (c *SequenceCatalog) Flush() {
	c.mu.Lock()
	c.entries = make(map[string]*models.Sequence)
	c.mu.Unlock()
}
