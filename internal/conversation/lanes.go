package conversation

import "sync"

// projectLanes serializes writes per project while letting different
// projects write concurrently. A lane's mutex is the project's write queue:
// waiters are admitted one at a time.
type projectLanes struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

// lane stores per-project synchronization metadata. refs counts goroutines
// holding or waiting on the lane; it is deleted when refs drops to zero.
type lane struct {
	mu   sync.Mutex
	refs int
}

func newProjectLanes() *projectLanes {
	return &projectLanes{lanes: make(map[string]*lane)}
}

// acquire locks the project's lane. The caller must call the returned
// release exactly once.
func (p *projectLanes) acquire(projectID string) (release func()) {
	p.mu.Lock()
	ln, ok := p.lanes[projectID]
	if !ok {
		ln = &lane{}
		p.lanes[projectID] = ln
	}
	ln.refs++
	p.mu.Unlock()

	// Lock outside the map mutex so other projects are not blocked.
	ln.mu.Lock()

	return func() {
		p.mu.Lock()
		ln.refs--
		if ln.refs == 0 {
			delete(p.lanes, projectID)
		}
		p.mu.Unlock()
		ln.mu.Unlock()
	}
}

// size returns the number of live lanes.
func (p *projectLanes) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lanes)
}
