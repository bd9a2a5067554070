package queue

import (
	"slices"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/track"
)

// antiRepeat remembers recently played tracks in play order. Lookups only
// see the newest memorySoftCap keys. Once it holds more than memoryHardCap
// keys the oldest half is forgotten.
type antiRepeat struct {
	order []string
	keys  map[string]struct{}
}

func newAntiRepeat() *antiRepeat {
	return &antiRepeat{keys: make(map[string]struct{})}
}

// memoryKey identifies a track across re-adds: the source URI when known,
// else the track id.
func memoryKey(t track.Track) string {
	if t.URI != "" {
		return t.URI
	}
	return t.ID
}

func (m *antiRepeat) record(key string) {
	if key == "" {
		return
	}
	if _, ok := m.keys[key]; ok {
		for i, k := range m.order {
			if k == key {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.order = append(m.order, key)
	m.keys[key] = struct{}{}

	if len(m.order) > memoryHardCap {
		drop := len(m.order) / 2
		for _, k := range m.order[:drop] {
			delete(m.keys, k)
		}
		m.order = append([]string(nil), m.order[drop:]...)
	}
}

func (m *antiRepeat) contains(key string) bool {
	if _, ok := m.keys[key]; !ok {
		return false
	}
	start := max(0, len(m.order)-memorySoftCap)
	return slices.Contains(m.order[start:], key)
}

func (m *antiRepeat) len() int {
	return len(m.order)
}
