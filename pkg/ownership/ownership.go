// Package ownership implements the ownership index capability (§4.C): the
// sole source of truth for "may this realm see this key". Grounded on the
// teacher's composite-key record-store pattern (internal/dht/presence.go,
// internal/dht/records.go), generalized from swarm-scoped DHT records to
// realm-scoped ownership records with cursor pagination.
package ownership

import (
	"sort"
	"sync"
	"time"
)

// Record is an immutable ownership entry for one (realm, key) pair.
type Record struct {
	Realm       string
	Key         string
	CreatedAt   time.Time
	CreatedBy   string // issuer token id
	ContentType string
	Size        int64
}

// CheckResult reports which of a requested key set are owned and which are not.
type CheckResult struct {
	Found   []string
	Missing []string
}

// ListResult is a single page of listNodes (§4.C).
type ListResult struct {
	Nodes      []Record
	NextCursor string
	Total      int
}

// Index is the capability every CAS backend must provide for ownership tracking.
type Index interface {
	HasOwnership(realm, key string) (bool, error)
	CheckOwnership(realm string, keys []string) (CheckResult, error)
	// AddOwnership is idempotent on (realm, key): if a record already exists
	// it is returned unchanged, leaving timestamps untouched.
	AddOwnership(realm, key, issuerTokenID, contentType string, size int64) (Record, error)
	ListNodes(realm string, limit int, cursor string) (ListResult, error)
}

type realmKey struct {
	realm string
	key   string
}

// Memory is an in-process, mutex-guarded ownership index.
type Memory struct {
	mu      sync.RWMutex
	records map[realmKey]Record
	// No separate ordering index is kept: ListNodes scans and sorts a
	// realm's records by createdAt on every call. AddOwnership of an
	// already-present key never changes createdAt.
}

// NewMemory creates an empty in-memory ownership index.
func NewMemory() *Memory {
	return &Memory{records: make(map[realmKey]Record)}
}

func (m *Memory) HasOwnership(realm, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[realmKey{realm, key}]
	return ok, nil
}

func (m *Memory) CheckOwnership(realm string, keys []string) (CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result CheckResult
	for _, key := range keys {
		if _, ok := m.records[realmKey{realm, key}]; ok {
			result.Found = append(result.Found, key)
		} else {
			result.Missing = append(result.Missing, key)
		}
	}
	return result, nil
}

func (m *Memory) AddOwnership(realm, key, issuerTokenID, contentType string, size int64) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rk := realmKey{realm, key}
	if existing, ok := m.records[rk]; ok {
		return existing, nil
	}

	record := Record{
		Realm:       realm,
		Key:         key,
		CreatedAt:   time.Now(),
		CreatedBy:   issuerTokenID,
		ContentType: contentType,
		Size:        size,
	}
	m.records[rk] = record
	return record, nil
}

func (m *Memory) ListNodes(realm string, limit int, cursor string) (ListResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []Record
	for rk, rec := range m.records {
		if rk.realm == realm {
			all = append(all, rec)
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].Key < all[j].Key
	})

	start := 0
	if cursor != "" {
		for i, rec := range all {
			if rec.Key == cursor {
				start = i + 1
				break
			}
		}
	}

	if limit <= 0 {
		limit = len(all)
	}

	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	if start > len(all) {
		start = len(all)
	}

	page := append([]Record(nil), all[start:end]...)
	result := ListResult{Nodes: page, Total: len(all)}
	if end < len(all) {
		result.NextCursor = page[len(page)-1].Key
	}
	return result, nil
}
