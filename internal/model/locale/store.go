package locale

// Store exposes catalog retrieval for HTTP handlers and the resolver.
type Store interface {
	List() []Catalog
	FindByLanguage(lang string) (Catalog, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Catalog
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied catalogs.
func NewMemoryStore(items []Catalog) *MemoryStore {
	return &MemoryStore{items: append([]Catalog(nil), items...)}
}

// List returns the available catalogs in seed order.
func (s *MemoryStore) List() []Catalog {
	return append([]Catalog(nil), s.items...)
}

// FindByLanguage looks up a catalog by its language code.
func (s *MemoryStore) FindByLanguage(lang string) (Catalog, bool) {
	for _, item := range s.items {
		if item.Language == lang {
			return item, true
		}
	}
	return Catalog{}, false
}
