package state

// Action is what an apply will do to a resource.
type Action string

const (
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionUnchanged Action = "unchanged"
	// ActionOrphaned marks a recorded resource the descriptor no longer
	// declares. It is reported, never deleted.
	ActionOrphaned Action = "orphaned"
)

// StatusReady is the recorded status of a resource whose last apply
// succeeded.
const StatusReady = "ready"

// Desired is one resource the descriptor declares.
type Desired struct {
	ID          string
	Kind        string
	Fingerprint string
}

// Change is the classification of one resource.
type Change struct {
	ID       string
	Kind     string
	Action   Action
	Previous string
	Current  string
}

// Classify compares desired resources with the last-applied record.
// Changes follow the order of desired, with orphans appended in ID order.
// A resource whose last apply did not reach ready is classified as an
// update so it is retried. prev may be nil.
func Classify(prev *Record, desired []Desired) []Change {
	changes := make([]Change, 0, len(desired))
	seen := make(map[string]bool, len(desired))
	for _, d := range desired {
		seen[d.ID] = true
		c := Change{ID: d.ID, Kind: d.Kind, Current: d.Fingerprint, Action: ActionCreate}
		if prev != nil {
			if old, ok := prev.Resources[d.ID]; ok {
				c.Previous = old.Fingerprint
				c.Action = ActionUpdate
				if old.Fingerprint == d.Fingerprint && old.Status == StatusReady {
					c.Action = ActionUnchanged
				}
			}
		}
		changes = append(changes, c)
	}

	if prev != nil {
		for _, id := range prev.IDs() {
			if seen[id] {
				continue
			}
			old := prev.Resources[id]
			changes = append(changes, Change{ID: id, Kind: old.Kind, Action: ActionOrphaned, Previous: old.Fingerprint})
		}
	}
	return changes
}

// Count returns how many changes have action a.
func Count(changes []Change, a Action) int {
	n := 0
	for _, c := range changes {
		if c.Action == a {
			n++
		}
	}
	return n
}
