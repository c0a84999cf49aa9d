// Package depot implements the depot and commit registries of §4.I: named,
// version-pointer namespaces with append-only history, and the separate
// lightweight commit-record type. Grounded on the teacher's pkg/swim/member.go
// Member type: a mutex-guarded entity with conditional state transitions and
// copy-out getters, generalized here from SWIM's incarnation-gated state
// machine to a depot's version-gated root pointer.
package depot

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/brinevault/brine/pkg/caserr"
)

// MainDepotName is the reserved, auto-created depot every realm starts with.
const MainDepotName = "main"

// Depot is the copy-out view of a named root pointer (§3 "Depot record").
type Depot struct {
	Realm       string    `json:"realm"`
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Root        string    `json:"root"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Description string    `json:"description,omitempty"`
}

// HistoryEntry is one append-only version record for a depot.
type HistoryEntry struct {
	Version   int       `json:"version"`
	Root      string    `json:"root"`
	CreatedAt time.Time `json:"createdAt"`
	Message   string    `json:"message,omitempty"`
}

// ListResult is a page of depot listing, ordered lexicographically by name.
type ListResult struct {
	Depots     []Depot
	NextCursor string
}

// entry is the mutex-guarded, mutable record behind each Depot, mirroring
// Member's own mu-guarded state plus copy-out accessors.
type entry struct {
	mu sync.Mutex

	realm       string
	id          string
	name        string
	root        string
	version     int
	createdAt   time.Time
	updatedAt   time.Time
	description string
	history     []HistoryEntry
}

func (e *entry) snapshot() Depot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Depot{
		Realm:       e.realm,
		ID:          e.id,
		Name:        e.name,
		Root:        e.root,
		Version:     e.version,
		CreatedAt:   e.createdAt,
		UpdatedAt:   e.updatedAt,
		Description: e.description,
	}
}

// updateRoot unconditionally advances the depot's version by exactly 1 and
// appends a history entry, mirroring Member.SetState's guarded mutation
// under the entry's own lock rather than a registry-wide one.
func (e *entry) updateRoot(newRoot, message string) Depot {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.version++
	e.root = newRoot
	e.updatedAt = time.Now()
	e.history = append(e.history, HistoryEntry{
		Version:   e.version,
		Root:      newRoot,
		CreatedAt: e.updatedAt,
		Message:   message,
	})
	return Depot{
		Realm:       e.realm,
		ID:          e.id,
		Name:        e.name,
		Root:        e.root,
		Version:     e.version,
		CreatedAt:   e.createdAt,
		UpdatedAt:   e.updatedAt,
		Description: e.description,
	}
}

func (e *entry) historySnapshot() []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]HistoryEntry, len(e.history))
	copy(out, e.history)
	return out
}

type realmName struct {
	realm string
	name  string
}

// Registry is an in-process depot + commit registry.
type Registry struct {
	mu sync.RWMutex

	depots    map[string]*entry    // keyed by depot id
	byName    map[realmName]string // (realm,name) -> depot id
	commits   map[string]CommitRecord
	commitIdx map[string][]string // realm -> commits keys (realm+"\x00"+root), most recent last
}

// NewRegistry creates an empty depot and commit registry.
func NewRegistry() *Registry {
	return &Registry{
		depots:    make(map[string]*entry),
		byName:    make(map[realmName]string),
		commits:   make(map[string]CommitRecord),
		commitIdx: make(map[string][]string),
	}
}

func newDepotID() string {
	var raw [12]byte
	if _, err := rand.Read(raw[:]); err != nil {
		panic("depot: failed to generate random id: " + err.Error())
	}
	return "dpt_" + hex.EncodeToString(raw[:])
}

// Create creates a new depot, erroring if name is already taken in realm
// (§4.I "create" — name unique per realm).
func (r *Registry) Create(realm, name, root, description string) (Depot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := realmName{realm, name}
	if _, exists := r.byName[key]; exists {
		return Depot{}, caserr.Conflict("a depot with this name already exists in this realm")
	}

	now := time.Now()
	e := &entry{
		realm:       realm,
		id:          newDepotID(),
		name:        name,
		root:        root,
		version:     1,
		createdAt:   now,
		updatedAt:   now,
		description: description,
		history:     []HistoryEntry{{Version: 1, Root: root, CreatedAt: now}},
	}
	r.depots[e.id] = e
	r.byName[key] = e.id
	return e.snapshot(), nil
}

// EnsureMainDepot idempotently bootstraps the reserved "main" depot on first
// listing (§4.I).
func (r *Registry) EnsureMainDepot(realm, emptyCollectionKey string) (Depot, error) {
	if existing, ok, err := r.GetByName(realm, MainDepotName); err != nil {
		return Depot{}, err
	} else if ok {
		return existing, nil
	}
	return r.Create(realm, MainDepotName, emptyCollectionKey, "")
}

func (r *Registry) GetByName(realm, name string) (Depot, bool, error) {
	r.mu.RLock()
	id, ok := r.byName[realmName{realm, name}]
	r.mu.RUnlock()
	if !ok {
		return Depot{}, false, nil
	}
	return r.Get(realm, id)
}

func (r *Registry) Get(realm, depotID string) (Depot, bool, error) {
	r.mu.RLock()
	e, ok := r.depots[depotID]
	r.mu.RUnlock()
	if !ok || e.realm != realm {
		return Depot{}, false, nil
	}
	return e.snapshot(), true, nil
}

// List returns depots in realm ordered lexicographically by name, paginated
// by a name-based cursor.
func (r *Registry) List(realm string, limit int, cursor string) (ListResult, error) {
	r.mu.RLock()
	var all []Depot
	for _, e := range r.depots {
		if e.realm == realm {
			all = append(all, e.snapshot())
		}
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	start := 0
	if cursor != "" {
		for i, d := range all {
			if d.Name == cursor {
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

	page := append([]Depot(nil), all[start:end]...)
	result := ListResult{Depots: page}
	if end < len(all) {
		result.NextCursor = page[len(page)-1].Name
	}
	return result, nil
}

// UpdateRoot advances depotID's version by 1 and appends a history entry
// (§4.I). Concurrency safety comes from the entry's own mutex, serializing
// concurrent updates to the same depot without blocking other depots.
func (r *Registry) UpdateRoot(realm, depotID, newRoot, message string) (Depot, error) {
	r.mu.RLock()
	e, ok := r.depots[depotID]
	r.mu.RUnlock()
	if !ok || e.realm != realm {
		return Depot{}, caserr.NotFound("depot not found")
	}
	return e.updateRoot(newRoot, message), nil
}

// Delete removes a depot, refusing the reserved main depot (§4.I).
func (r *Registry) Delete(realm, depotID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.depots[depotID]
	if !ok || e.realm != realm {
		return caserr.NotFound("depot not found")
	}
	if e.name == MainDepotName {
		return caserr.Forbidden("the main depot cannot be deleted")
	}
	delete(r.depots, depotID)
	delete(r.byName, realmName{realm, e.name})
	return nil
}

func (r *Registry) ListHistory(realm, depotID string, limit int) ([]HistoryEntry, error) {
	r.mu.RLock()
	e, ok := r.depots[depotID]
	r.mu.RUnlock()
	if !ok || e.realm != realm {
		return nil, caserr.NotFound("depot not found")
	}

	history := e.historySnapshot()
	if limit > 0 && limit < len(history) {
		history = history[len(history)-limit:]
	}
	return history, nil
}

func (r *Registry) GetHistory(realm, depotID string, version int) (HistoryEntry, bool, error) {
	r.mu.RLock()
	e, ok := r.depots[depotID]
	r.mu.RUnlock()
	if !ok || e.realm != realm {
		return HistoryEntry{}, false, caserr.NotFound("depot not found")
	}

	for _, h := range e.historySnapshot() {
		if h.Version == version {
			return h, true, nil
		}
	}
	return HistoryEntry{}, false, nil
}

// Rollback appends a new version pointing at an earlier root, never rewriting
// history (§4.I "Rollback").
func (r *Registry) Rollback(realm, depotID string, targetVersion int) (Depot, error) {
	target, ok, err := r.GetHistory(realm, depotID, targetVersion)
	if err != nil {
		return Depot{}, err
	}
	if !ok {
		return Depot{}, caserr.NotFound("target version not found in history")
	}
	return r.UpdateRoot(realm, depotID, target.Root, "Rollback to version "+strconv.Itoa(targetVersion))
}
