// Package registry maps subjects to the connections that want their updates.
package registry

import "sync"

// Wildcard is the reserved subject meaning every subject.
const Wildcard = "*"

// IsWildcard reports whether name is the reserved wildcard subject.
func IsWildcard(name string) bool {
	return name == Wildcard
}

// -----------------------------------------------------------------------------

// SubscriptionRegistry holds at most one subject per connection.
type SubscriptionRegistry struct {
	mu       sync.RWMutex
	subjects map[string]map[uint64]struct{}
	current  map[uint64]string
}

func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{
		subjects: make(map[string]map[uint64]struct{}),
		current:  make(map[uint64]string),
	}
}

// -----------------------------------------------------------------------------

// Subscribe moves id from its previous subject, if any, to subject.
func (r *SubscriptionRegistry) Subscribe(id uint64, subject string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.current[id]; ok {
		r.removeLocked(id, prev)
	}

	set, ok := r.subjects[subject]
	if !ok {
		set = make(map[uint64]struct{})
		r.subjects[subject] = set
	}
	set[id] = struct{}{}
	r.current[id] = subject
}

// -----------------------------------------------------------------------------

// Unsubscribe removes id from subject. No-op when id is not in that set.
func (r *SubscriptionRegistry) Unsubscribe(id uint64, subject string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subjects[subject][id]; !ok {
		return
	}
	r.removeLocked(id, subject)
	delete(r.current, id)
}

func (r *SubscriptionRegistry) removeLocked(id uint64, subject string) {
	set, ok := r.subjects[subject]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(r.subjects, subject)
	}
}

// -----------------------------------------------------------------------------

// TargetsFor returns the union of the subscribers of subject and of the wildcard.
func (r *SubscriptionRegistry) TargetsFor(subject string) map[uint64]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	named := r.subjects[subject]
	wild := r.subjects[Wildcard]

	out := make(map[uint64]struct{}, len(named)+len(wild))
	for id := range named {
		out[id] = struct{}{}
	}
	for id := range wild {
		out[id] = struct{}{}
	}
	return out
}

// -----------------------------------------------------------------------------

// SubjectOf returns the subject id is subscribed to.
func (r *SubscriptionRegistry) SubjectOf(id uint64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.current[id]
	return s, ok
}

// Counts returns the number of subscribers per subject.
func (r *SubscriptionRegistry) Counts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.subjects))
	for s, set := range r.subjects {
		out[s] = len(set)
	}
	return out
}
