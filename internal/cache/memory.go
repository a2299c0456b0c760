package cache

// memEntry holds a decoded record alongside the metadata mirrored from its
// disk row. size is the byte length of the canonical encoding computed at put
// time, so memory hits never re-encode and evictions never re-decode.
type memEntry[R Record] struct {
	record    R
	timestamp float64
	size      int64
}

// memoryTier is the in-process map of decoded records. It is not safe for
// concurrent use on its own; the coordinator's lock guards every call.
type memoryTier[R Record] struct {
	entries   map[string]*memEntry[R]
	totalSize int64
}

func newMemoryTier[R Record]() *memoryTier[R] {
	return &memoryTier[R]{entries: make(map[string]*memEntry[R])}
}

func (m *memoryTier[R]) get(key string) (*memEntry[R], bool) {
	e, ok := m.entries[key]
	return e, ok
}

func (m *memoryTier[R]) put(key string, record R, timestamp float64, size int64) {
	if prev, ok := m.entries[key]; ok {
		m.totalSize -= prev.size
	}
	m.entries[key] = &memEntry[R]{record: record, timestamp: timestamp, size: size}
	m.totalSize += size
}

// delete reports whether the key was present.
func (m *memoryTier[R]) delete(key string) bool {
	e, ok := m.entries[key]
	if !ok {
		return false
	}
	m.totalSize -= e.size
	delete(m.entries, key)
	return true
}

func (m *memoryTier[R]) contains(key string) bool {
	_, ok := m.entries[key]
	return ok
}

func (m *memoryTier[R]) count() int64 { return int64(len(m.entries)) }

func (m *memoryTier[R]) size() int64 { return m.totalSize }

// eldest returns the key that sorts first by (timestamp asc, key asc), which
// is the next eviction victim. The scan is linear; the tier is bounded by the
// configured item limit, so the candidate set stays small.
func (m *memoryTier[R]) eldest() (string, bool) {
	var (
		bestKey string
		bestTS  float64
		found   bool
	)
	for key, e := range m.entries {
		if !found || e.timestamp < bestTS || (e.timestamp == bestTS && key < bestKey) {
			bestKey, bestTS, found = key, e.timestamp, true
		}
	}
	return bestKey, found
}

func (m *memoryTier[R]) clear() {
	m.entries = make(map[string]*memEntry[R])
	m.totalSize = 0
}
