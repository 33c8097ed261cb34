package displayrules

import "fmt"

// ConsistencyError reports a sequence content slot whose data is not a
// sequence of the same length. It is fatal for the request.
type ConsistencyError struct {
	ContentKey string
	DataKey    string
	// Want is the length of the content sequence.
	Want int
	// Got is the length of the data sequence, -1 when the data is not a
	// sequence at all.
	Got int
}

func (e *ConsistencyError) Error() string {
	got := "a single table"
	if e.Got >= 0 {
		got = fmt.Sprintf("%d item(s)", e.Got)
	}
	return fmt.Sprintf("%s must be the same length array (of object) as %s! (want %d item(s), got %s)",
		e.DataKey, e.ContentKey, e.Want, got)
}

// Check validates a route's declared display rules before any resolution
// work. It walks the content slots of the canonical shape first and the
// route-only slots after them, and returns the first pairing violation.
// Check never modifies route and performs no I/O.
func Check(route *DisplayRules) error {
	if route == nil {
		return nil
	}
	seen := map[string]struct{}{}
	for _, id := range baseSlotIDs {
		seen[id] = struct{}{}
		if s := route.Slot(id); s != nil {
			if err := s.check(); err != nil {
				return err
			}
		}
	}
	for _, s := range route.Slots {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		if err := s.check(); err != nil {
			return err
		}
	}
	return nil
}
