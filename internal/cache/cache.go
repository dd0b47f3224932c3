// Package cache holds the in-memory tier between the player core and the
// remote catalog: resolved playlist details, per-playlist song records, and
// the monotonically growing set of ids that failed resolution.
package cache

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Details is a thread-safe LRU of resolved playlist details keyed by
// playlist id. A hit must return the cached value unchanged: repeated
// navigation within a playlist never re-fetches.
type Details[D any] struct {
	lru *lru.Cache[int64, D]
}

// NewDetails creates a detail cache bounded to capacity playlists.
func NewDetails[D any](capacity int) *Details[D] {
	c, _ := lru.New[int64, D](capacity)
	return &Details[D]{lru: c}
}

func (d *Details[D]) Get(id int64) (D, bool) {
	return d.lru.Get(id)
}

func (d *Details[D]) Put(id int64, detail D) {
	d.lru.Add(id, detail)
}

func (d *Details[D]) Remove(id int64) {
	d.lru.Remove(id)
}

func (d *Details[D]) Len() int {
	return d.lru.Len()
}

// Songs maps playlist id → song id → song record. Entries are created
// lazily on first resolution and dropped wholesale when the owning
// playlist disappears from a reloaded catalog.
type Songs[S any] struct {
	mutex     sync.RWMutex
	playlists map[int64]map[int64]S
}

func NewSongs[S any]() *Songs[S] {
	return &Songs[S]{playlists: make(map[int64]map[int64]S)}
}

func (s *Songs[S]) Get(playlistID, songID int64) (S, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	song, ok := s.playlists[playlistID][songID]
	return song, ok
}

func (s *Songs[S]) Put(playlistID, songID int64, song S) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, ok := s.playlists[playlistID]
	if !ok {
		entry = make(map[int64]S)
		s.playlists[playlistID] = entry
	}
	entry[songID] = song
}

// Missing returns the subset of ids with no record under playlistID,
// preserving order.
func (s *Songs[S]) Missing(playlistID int64, ids []int64) []int64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entry := s.playlists[playlistID]
	var missing []int64
	for _, id := range ids {
		if _, ok := entry[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// EvictPlaylist drops every song cached under playlistID.
func (s *Songs[S]) EvictPlaylist(playlistID int64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.playlists, playlistID)
}

func (s *Songs[S]) Count(playlistID int64) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.playlists[playlistID])
}

// InvalidSet tracks song ids that failed every permitted resolution path.
// It only grows within a session; a rebuilt playlist detail starts with a
// fresh set. The bloom filter answers the common "not invalid" probe
// without touching the exact map; membership is always confirmed exactly.
type InvalidSet struct {
	mutex sync.RWMutex
	ids   map[int64]struct{}
	bloom *bloom.BloomFilter
}

// NewInvalidSet sizes the prefilter for an expected playlist length.
func NewInvalidSet(expectedItems int, falsePositiveRate float64) *InvalidSet {
	if expectedItems < 1 {
		expectedItems = 1
	}
	return &InvalidSet{
		ids:   make(map[int64]struct{}),
		bloom: bloom.NewWithEstimates(uint(expectedItems), falsePositiveRate),
	}
}

func (s *InvalidSet) Add(id int64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.ids[id]; exists {
		return
	}
	s.ids[id] = struct{}{}
	s.bloom.Add(int64Key(id))
}

func (s *InvalidSet) Has(id int64) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.bloom.Test(int64Key(id)) {
		return false
	}
	_, exists := s.ids[id]
	return exists
}

func (s *InvalidSet) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.ids)
}

func int64Key(id int64) []byte {
	key := make([]byte, 8)
	for i := 0; i < 8; i++ {
		key[i] = byte(id >> (8 * i))
	}
	return key
}
