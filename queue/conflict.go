package queue

import "sort"

// applyConflictStrategy resolves decomposer-declared Conflicts per spec.md
// §4.C.6. Under "serialize", every pair of tasks named in a write-write
// conflict is guaranteed a different wave (the later-loaded task of the
// pair is pushed one wave further). Under "merge_warn" (the only other
// implemented strategy per spec.md §9 — "the source has only serialize
// fully implemented"), wave assignment is left untouched and the conflict
// is recorded as a warning on each involved task.
func applyConflictStrategy(tasks map[string]*Task, conflicts []Conflict, strategy ConflictStrategy) {
	for _, c := range conflicts {
		if c.Type != ConflictWriteWrite {
			continue
		}

		switch strategy {
		case ConflictStrategySerialize:
			serializeConflict(tasks, c)
		default:
			warnConflict(tasks, c)
		}
	}
}

// serializeConflict walks the conflict's task ids in declared (load) order
// and bumps any task's wave that collides with an earlier one in the same
// group, guaranteeing pairwise-distinct waves.
func serializeConflict(tasks map[string]*Task, c Conflict) {
	seenWave := -1
	for _, id := range c.TaskIDs {
		t, ok := tasks[id]
		if !ok {
			continue
		}
		if t.Wave <= seenWave {
			t.Wave = seenWave + 1
		}
		seenWave = t.Wave
	}
}

func warnConflict(tasks map[string]*Task, c Conflict) {
	ids := append([]string(nil), c.TaskIDs...)
	sort.Strings(ids)
	for _, id := range ids {
		t, ok := tasks[id]
		if !ok {
			continue
		}
		others := make([]string, 0, len(ids)-1)
		for _, other := range ids {
			if other != id {
				others = append(others, other)
			}
		}
		t.Warnings = append(t.Warnings, "write-write conflict on "+c.Resource+" with "+joinComma(others))
	}
}

func joinComma(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += id
	}
	return out
}
