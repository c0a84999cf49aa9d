package depot

import (
	"sort"
	"time"

	"github.com/brinevault/brine/pkg/caserr"
)

// CommitRecord expresses "this root is notable" without mutating a named
// pointer (§3 "Commit record", §4.I "Commits"), keyed by (realm, root).
type CommitRecord struct {
	Realm     string    `json:"realm"`
	Root      string    `json:"root"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy"`
}

// CreateCommit records a new commit under (realm, root).
func (r *Registry) CreateCommit(realm, root, createdBy, title string) (CommitRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idxKey := realm + "\x00" + root
	if _, exists := r.commits[idxKey]; exists {
		return CommitRecord{}, caserr.Conflict("a commit record already exists for this root")
	}

	rec := CommitRecord{
		Realm:     realm,
		Root:      root,
		Title:     title,
		CreatedAt: time.Now(),
		CreatedBy: createdBy,
	}
	r.commits[idxKey] = rec
	r.commitIdx[realm] = append(r.commitIdx[realm], idxKey)
	return rec, nil
}

func (r *Registry) GetCommit(realm, root string) (CommitRecord, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.commits[realm+"\x00"+root]
	return rec, ok, nil
}

// ListCommits returns every commit record in realm, sorted by createdAt
// descending (§4.I).
func (r *Registry) ListCommits(realm string, limit int) ([]CommitRecord, error) {
	r.mu.RLock()
	var all []CommitRecord
	for _, idxKey := range r.commitIdx[realm] {
		if rec, ok := r.commits[idxKey]; ok {
			all = append(all, rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *Registry) UpdateCommitTitle(realm, root, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idxKey := realm + "\x00" + root
	rec, ok := r.commits[idxKey]
	if !ok {
		return caserr.NotFound("commit record not found")
	}
	rec.Title = title
	r.commits[idxKey] = rec
	return nil
}

func (r *Registry) DeleteCommit(realm, root string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idxKey := realm + "\x00" + root
	if _, ok := r.commits[idxKey]; !ok {
		return caserr.NotFound("commit record not found")
	}
	delete(r.commits, idxKey)

	remaining := r.commitIdx[realm][:0]
	for _, k := range r.commitIdx[realm] {
		if k != idxKey {
			remaining = append(remaining, k)
		}
	}
	r.commitIdx[realm] = remaining
	return nil
}
