package blackboard

import "fmt"

// ClaimMode is the advisory lock strength requested on a resource.
type ClaimMode string

const (
	ClaimRead      ClaimMode = "read"
	ClaimWrite     ClaimMode = "write"
	ClaimExclusive ClaimMode = "exclusive"
)

// claim is the held-lock bookkeeping for one resource. Per spec.md §5, this
// is purely advisory: nothing stops a worker from touching the resource
// without claiming it first.
type claim struct {
	resource string
	holders  map[string]ClaimMode // agentID -> mode
}

// ErrAlreadyClaimed is returned by Claim when an exclusive claim conflicts
// with an existing holder.
type ErrAlreadyClaimed struct {
	Resource  string
	HeldBy    string
	HeldMode  ClaimMode
	Requested ClaimMode
	RequestBy string
}

func (e *ErrAlreadyClaimed) Error() string {
	return fmt.Sprintf("blackboard: resource %q already claimed %s by %s, %s claim by %s rejected",
		e.Resource, e.HeldMode, e.HeldBy, e.Requested, e.RequestBy)
}

// conflicts reports whether a new claim of mode `mode` by `agentID` conflicts
// with one of the resource's existing holders, and if so returns that holder
// and its mode. Exclusive claims never
// coexist with anything; non-exclusive claims only conflict with an
// existing exclusive holder.
func (c *claim) conflicts(agentID string, mode ClaimMode) (string, ClaimMode, bool) {
	for holder, heldMode := range c.holders {
		if holder == agentID {
			continue
		}
		if mode == ClaimExclusive || heldMode == ClaimExclusive {
			return holder, heldMode, true
		}
	}
	return "", "", false
}
