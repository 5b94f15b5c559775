package focus

import (
	"sort"
	"time"
)

// Registry is the single source of truth mapping domain to tracking state.
// It is not safe for concurrent use on its own; the Engine serializes access.
//
// Deleting a record is the only path by which a tab set may legitimately stay
// empty: any operation that empties the set either deletes the record
// immediately (RemoveTab) or is an explicit recovery/session-end reset whose
// caller reconciles or deletes shortly after.
type Registry struct {
	records map[string]*DomainRecord
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*DomainRecord)}
}

// Get returns the record for domain, or nil.
func (r *Registry) Get(domain string) *DomainRecord {
	return r.records[domain]
}

// Len returns the number of tracked domains.
func (r *Registry) Len() int { return len(r.records) }

// Domains returns the tracked domains in deterministic order.
func (r *Registry) Domains() []string {
	out := make([]string, 0, len(r.records))
	for d := range r.records {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// CreateForNewVisit replaces any prior record with the "awaiting intention"
// shape: not tracking, paused with reason noIntention, zero time spent, the
// given tab as its only member. Only the widget position survives from a
// prior record, and only when preservePosition is set.
func (r *Registry) CreateForNewVisit(domain string, tabID int, preservePosition bool, now time.Time) *DomainRecord {
	position := PositionBottomRight
	if prior := r.records[domain]; prior != nil {
		prior.stopBlurTimer()
		if preservePosition && prior.WidgetPosition != "" {
			position = prior.WidgetPosition
		}
	}

	rec := newRecord(now, position)
	rec.IsPaused = true
	rec.PauseReason = ReasonNoIntention
	if tabID > 0 {
		rec.TabIDs[tabID] = struct{}{}
	}
	r.records[domain] = rec
	return rec
}

// CreateBare inserts an empty running-shape record, used when an intention
// arrives for a domain that was never observed through a tab event.
func (r *Registry) CreateBare(domain string, now time.Time) *DomainRecord {
	rec := newRecord(now, PositionBottomRight)
	r.records[domain] = rec
	return rec
}

// Put installs a rehydrated record, replacing any existing one.
func (r *Registry) Put(domain string, rec *DomainRecord) {
	if prior := r.records[domain]; prior != nil {
		prior.stopBlurTimer()
	}
	r.records[domain] = rec
}

// AddTab records that the tab currently shows domain. Unknown domains and
// non-positive ids are ignored.
func (r *Registry) AddTab(domain string, tabID int) {
	rec := r.records[domain]
	if rec == nil || tabID <= 0 {
		return
	}
	rec.TabIDs[tabID] = struct{}{}
}

// RemoveTab drops the tab from the domain's membership and deletes the record
// when the set becomes empty. It reports whether the record was deleted.
func (r *Registry) RemoveTab(domain string, tabID int) bool {
	rec := r.records[domain]
	if rec == nil {
		return false
	}
	delete(rec.TabIDs, tabID)
	if len(rec.TabIDs) == 0 {
		r.Delete(domain)
		return true
	}
	return false
}

// Delete removes the record and cancels its pending grace timer.
func (r *Registry) Delete(domain string) {
	if rec := r.records[domain]; rec != nil {
		rec.stopBlurTimer()
	}
	delete(r.records, domain)
}

// ForEach visits every record in deterministic order.
func (r *Registry) ForEach(fn func(domain string, rec *DomainRecord)) {
	for _, d := range r.Domains() {
		fn(d, r.records[d])
	}
}
