package verifier

import "sort"

// Compose merges the tool-specific binding list with the wildcard-bound
// list, deduplicates by verifier name (first seen wins), and stably sorts
// by AciruOrder lexicographically; defs with an empty order sort last.
func Compose(toolDefs, wildcardDefs []Def) []Def {
	seen := make(map[string]bool, len(toolDefs)+len(wildcardDefs))
	merged := make([]Def, 0, len(toolDefs)+len(wildcardDefs))

	for _, d := range append(append([]Def{}, toolDefs...), wildcardDefs...) {
		if seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		merged = append(merged, d)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return orderKey(merged[i]) < orderKey(merged[j])
	})
	return merged
}

// orderKey sorts an absent AciruOrder after every non-empty one.
func orderKey(d Def) string {
	if d.AciruOrder == "" {
		return "￿"
	}
	return d.AciruOrder
}
