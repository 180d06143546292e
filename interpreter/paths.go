// Path computation helpers: least-common-compound-ancestor, exit/entry
// sets. Grounded on the teacher's internal/core/machine_helper.go
// (computeLCCA/getExitStates/getEntryStates), generalized so a source can
// be any ancestor of the triggering leaf (not only the leaf itself) and so
// descent into a compound/parallel target can yield more than one leaf.
package interpreter

import (
	"sort"
	"strings"

	"github.com/comalice/xorca/machine"
)

// computeLCCA returns the longest common dotted-path prefix of a and b.
func computeLCCA(a, b string) string {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) < n {
		n = len(bs)
	}
	i := 0
	for i < n && as[i] == bs[i] {
		i++
	}
	if i == 0 {
		return ""
	}
	return strings.Join(as[:i], ".")
}

// exitChain returns the full dotted path from leafPath up to (but
// excluding) lcca, ordered innermost-first (leafPath, its parent, ...),
// which is the reverse-document-order the spec mandates for running exit
// actions (spec section 4.3 step 4).
func exitChain(leafPath, lcca string) []string {
	if lcca != "" && !strings.HasPrefix(leafPath, lcca) {
		return nil
	}
	segs := strings.Split(leafPath, ".")
	lcaDepth := 0
	if lcca != "" {
		lcaDepth = len(strings.Split(lcca, "."))
	}
	var out []string
	for i := len(segs); i > lcaDepth; i-- {
		out = append(out, strings.Join(segs[:i], "."))
	}
	return out
}

// entryChain returns the path segments from lcca down to targetPath,
// outer-first, the document order the spec mandates for running entry
// actions.
func entryChain(lcca, targetPath string) []string {
	segs := strings.Split(targetPath, ".")
	lcaDepth := 0
	if lcca != "" {
		lcaDepth = len(strings.Split(lcca, "."))
	}
	var out []string
	for i := lcaDepth + 1; i <= len(segs); i++ {
		out = append(out, strings.Join(segs[:i], "."))
	}
	return out
}

// sortedChildIDs returns a state's child IDs in a deterministic order, so
// parallel-region descent and initial-configuration construction don't
// depend on Go's randomized map iteration (spec section 8, "Snapshot
// determinism").
func sortedChildIDs(s *machine.State) []string {
	ids := make([]string, 0, len(s.Children))
	for id := range s.Children {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// descend walks down from s to every leaf reachable without an event
// (entering Initial children of Compound states, every region of
// Parallel states), collecting both the full ordered list of entered
// states (document order, for running entry actions and computing
// emissions) and the resulting leaf paths.
func descend(s *machine.State) (entered []*machine.State, leaves []string) {
	var walk func(cur *machine.State)
	walk = func(cur *machine.State) {
		entered = append(entered, cur)
		switch {
		case cur.Type == machine.Parallel:
			for _, id := range sortedChildIDs(cur) {
				walk(cur.Children[id])
			}
		case cur.Type == machine.Compound && len(cur.Children) > 0:
			walk(cur.Children[cur.Initial])
		default:
			leaves = append(leaves, cur.Path())
		}
	}
	walk(s)
	return
}

// byDepthDesc sorts leaf paths deepest-first, with a lexicographic
// tiebreak for determinism. The spec's transition tie-break rule
// ("inner-most leaf wins") is implemented by trying leaves in this order.
func byDepthDesc(leaves []string) []string {
	out := append([]string(nil), leaves...)
	sort.Slice(out, func(i, j int) bool {
		di, dj := strings.Count(out[i], "."), strings.Count(out[j], ".")
		if di != dj {
			return di > dj
		}
		return out[i] < out[j]
	})
	return out
}

// ancestorChainLeafFirst returns path, its parent, ..., up to and
// including the root — the order transition lookup walks (spec section
// 4.3 step 2: "look up event type in that leaf's transition map, then
// walk ancestors until one matches").
func ancestorChainLeafFirst(path string) []string {
	segs := strings.Split(path, ".")
	out := make([]string, len(segs))
	for i := range segs {
		out[i] = strings.Join(segs[:len(segs)-i], ".")
	}
	return out
}
