package locale

import (
	"sync"

	"golang.org/x/text/language"
)

// Resolver turns string keys into text in each user's own language.
// Preferences are per user; a user who never chose gets the default.
type Resolver struct {
	store       Store
	defaultLang string
	matcher     language.Matcher
	languages   []string

	mu    sync.RWMutex
	prefs map[string]string
}

// NewResolver builds a resolver over store. defaultLang must name a catalog
// in the store; otherwise the first catalog is used.
func NewResolver(store Store, defaultLang string) *Resolver {
	catalogs := store.List()
	tags := make([]language.Tag, 0, len(catalogs))
	languages := make([]string, 0, len(catalogs))
	for _, c := range catalogs {
		tags = append(tags, language.Make(c.Language))
		languages = append(languages, c.Language)
	}

	if _, ok := store.FindByLanguage(defaultLang); !ok && len(languages) > 0 {
		defaultLang = languages[0]
	}

	return &Resolver{
		store:       store,
		defaultLang: defaultLang,
		matcher:     language.NewMatcher(tags),
		languages:   languages,
		prefs:       make(map[string]string),
	}
}

// Match maps a client hint ("ru", "ru-RU", or an Accept-Language header)
// onto a supported language. Unknown or empty hints yield the default.
func (r *Resolver) Match(hint string) string {
	if hint == "" || len(r.languages) == 0 {
		return r.defaultLang
	}
	tags, _, err := language.ParseAcceptLanguage(hint)
	if err != nil || len(tags) == 0 {
		return r.defaultLang
	}
	_, idx, confidence := r.matcher.Match(tags...)
	if confidence == language.No {
		return r.defaultLang
	}
	return r.languages[idx]
}

// SetLanguage records userID's choice. It reports false for an unknown language.
func (r *Resolver) SetLanguage(userID, lang string) bool {
	if _, ok := r.store.FindByLanguage(lang); !ok {
		return false
	}
	r.mu.Lock()
	r.prefs[userID] = lang
	r.mu.Unlock()
	return true
}

// Language returns the language in effect for userID.
func (r *Resolver) Language(userID string) string {
	r.mu.RLock()
	lang, ok := r.prefs[userID]
	r.mu.RUnlock()
	if ok {
		return lang
	}
	return r.defaultLang
}

// Text resolves key for userID, falling back to the default catalog and
// finally to the key itself so a missing entry never breaks a reply.
func (r *Resolver) Text(userID string, key Key) string {
	if catalog, ok := r.store.FindByLanguage(r.Language(userID)); ok {
		if text, ok := catalog.Strings[key]; ok {
			return text
		}
	}
	if catalog, ok := r.store.FindByLanguage(r.defaultLang); ok {
		if text, ok := catalog.Strings[key]; ok {
			return text
		}
	}
	return string(key)
}

// Catalogs lists the languages a user can pick from.
func (r *Resolver) Catalogs() []Catalog {
	return r.store.List()
}
