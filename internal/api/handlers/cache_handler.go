package handlers

import (
	"net/http"

	"cryptoPositionWatch/internal/cache"
)

// CacheStatter is a named cache that reports its counters.
type CacheStatter interface {
	Name() string
	Stats() cache.Stats
}

type CacheHandler struct {
	caches []CacheStatter
}

func NewCacheHandler(caches ...CacheStatter) *CacheHandler {
	return &CacheHandler{caches: caches}
}

// GetStats returns hits, misses and size per cache name.
func (h *CacheHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]cache.Stats, len(h.caches))
	for _, c := range h.caches {
		out[c.Name()] = c.Stats()
	}
	writeJSON(w, http.StatusOK, out)
}
