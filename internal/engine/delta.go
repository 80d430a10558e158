package engine

import "sort"

// Delta partitions a desired module set against a discovery snapshot.
type Delta struct {
	// AlreadyInstalled are desired modules that are installed and were
	// not forced; they are terminal and never re-submitted.
	AlreadyInstalled []string

	// Unavailable are desired modules the registry does not expose.
	Unavailable []string

	// Candidates are desired modules that need installation, including
	// installed modules the caller explicitly forced.
	Candidates []string
}

// ComputeDelta is a pure function over the snapshot: no runtime calls, no
// engine state. Forced names outside desired ∩ installed are ignored, so a
// stale force list can never widen the destructive path.
func ComputeDelta(desired, forced []string, snap *Snapshot) Delta {
	forcedSet := make(map[string]bool, len(forced))
	for _, name := range forced {
		forcedSet[name] = true
	}

	var delta Delta
	seen := make(map[string]bool, len(desired))
	for _, name := range desired {
		if seen[name] {
			continue
		}
		seen[name] = true

		switch {
		case snap.IsInstalled(name) && !forcedSet[name]:
			// An installed module stays satisfied even if the registry
			// no longer exposes it.
			delta.AlreadyInstalled = append(delta.AlreadyInstalled, name)
		case !snap.IsAvailable(name):
			delta.Unavailable = append(delta.Unavailable, name)
		default:
			delta.Candidates = append(delta.Candidates, name)
		}
	}

	sort.Strings(delta.AlreadyInstalled)
	sort.Strings(delta.Unavailable)
	sort.Strings(delta.Candidates)
	return delta
}
