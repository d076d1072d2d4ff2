package catalog

import "sync/atomic"

// Snapshot is one complete, immutable resolution of the catalog.
// Requests look plans up in whichever snapshot was current when they
// arrived; a concurrent refresh never disturbs them.
type Snapshot struct {
	Version uint64
	plans   map[string]CallPlan
	report  Report
}

func (s *Snapshot) Plan(id string) (CallPlan, bool) {
	p, ok := s.plans[id]
	return p, ok
}

func (s *Snapshot) Report() Report { return s.report }

func (s *Snapshot) IDs() []string { return s.report.SortedIDs() }

func (s *Snapshot) Len() int { return len(s.plans) }

// Store publishes catalog snapshots. Readers call Current without
// locks; a refresh builds a whole new snapshot and swaps it in
// atomically, so a partially built catalog is never visible.
type Store struct {
	cur     atomic.Pointer[Snapshot]
	version atomic.Uint64
}

func NewStore() *Store {
	s := &Store{}
	s.cur.Store(&Snapshot{plans: map[string]CallPlan{}})
	return s
}

// Publish resolves metas into a fresh snapshot and makes it current.
// Single writer; safe against any number of concurrent Current calls.
func (s *Store) Publish(metas []FuncMeta, opts Options) *Snapshot {
	rep := Resolve(metas, opts)
	plans := make(map[string]CallPlan, len(rep.Accepted))
	for _, p := range rep.Accepted {
		plans[p.ID] = p
	}
	snap := &Snapshot{
		Version: s.version.Add(1),
		plans:   plans,
		report:  rep,
	}
	s.cur.Store(snap)
	return snap
}

func (s *Store) Current() *Snapshot { return s.cur.Load() }
