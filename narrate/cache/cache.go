// Package cache provides an in-memory LRU cache for synthesized audio,
// keyed by the synthesis parameters that determine the output.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/francktshibala/bookbridge-narrator/narrate/audio"
)

// ErrItemTooLarge indicates a clip exceeds the cache capacity on its own.
var ErrItemTooLarge = errors.New("cache: item larger than capacity")

// Key derives a cache key from the parameters that affect synthesis
// output. Two requests with the same key would produce the same audio.
func Key(backendName, voice, text string, rate float64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%.3f\x00%s", backendName, voice, rate, text)
	return hex.EncodeToString(h.Sum(nil))
}

// AudioCache is an in-memory LRU cache for audio clips with a byte
// capacity limit. Only the audio itself is cached; boundary events are
// regenerated per playback.
type AudioCache struct {
	capacity int64
	size     int64

	items    map[string]*list.Element
	eviction *list.List

	mu sync.Mutex

	hits, misses int64
}

type entry struct {
	key  string
	clip *audio.Audio
	size int64
}

// New creates a cache that holds at most capacity bytes of audio data.
// A zero or negative capacity disables caching entirely.
func New(capacity int64) *AudioCache {
	return &AudioCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
	}
}

// Get retrieves a clip, marking it most recently used.
func (c *AudioCache) Get(key string) (*audio.Audio, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.eviction.MoveToFront(elem)
	c.hits++
	return elem.Value.(*entry).clip, true
}

// Put stores a clip, evicting least recently used clips until it fits.
func (c *AudioCache) Put(key string, clip *audio.Audio) error {
	if clip == nil {
		return nil
	}
	clipSize := clip.Size()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		e := elem.Value.(*entry)
		c.size += clipSize - e.size
		e.clip = clip
		e.size = clipSize
		return nil
	}

	if clipSize > c.capacity {
		return ErrItemTooLarge
	}

	for c.size+clipSize > c.capacity && c.eviction.Len() > 0 {
		c.evictOldest()
	}

	elem := c.eviction.PushFront(&entry{key: key, clip: clip, size: clipSize})
	c.items[key] = elem
	c.size += clipSize
	return nil
}

// Delete removes one clip. Missing keys are a no-op.
func (c *AudioCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Clear drops every cached clip.
func (c *AudioCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.eviction.Init()
	c.size = 0
}

// Size returns the cached byte total.
func (c *AudioCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of cached clips.
func (c *AudioCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eviction.Len()
}

// Stats reports hit and miss counts since creation.
func (c *AudioCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *AudioCache) evictOldest() {
	if elem := c.eviction.Back(); elem != nil {
		c.removeElement(elem)
	}
}

func (c *AudioCache) removeElement(elem *list.Element) {
	e := elem.Value.(*entry)
	c.eviction.Remove(elem)
	delete(c.items, e.key)
	c.size -= e.size
}
