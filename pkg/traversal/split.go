package traversal

// SplitDisjoint partitions s into weakly-connected components. If
// forceConnect is non-empty, every component reachable from any seed in
// it (even if no edge directly links the seeds' components) collapses
// into a single leading output structure; the remaining components each
// become their own output, in vertex-arena order.
func (s *Structure) SplitDisjoint(forceConnect []string) []*Structure {
	visitedV := make([]bool, len(s.vertices))
	visitedE := make([]bool, len(s.edges))

	var components []*Structure

	if len(forceConnect) > 0 {
		out := New()
		mapping := make(map[int]int)
		for _, seed := range forceConnect {
			idx, ok := s.index[seed]
			if !ok || visitedV[idx] {
				continue
			}
			s.walk(idx, out, mapping, visitedV, visitedE)
		}
		if len(out.vertices) > 0 {
			components = append(components, out)
		}
	}

	for idx := range s.vertices {
		if visitedV[idx] {
			continue
		}
		out := New()
		mapping := make(map[int]int)
		s.walk(idx, out, mapping, visitedV, visitedE)
		components = append(components, out)
	}

	return components
}

// copyVertex ensures origIdx's vertex exists in out, creating it (with its
// property bag) on first reference, and returns its index in out.
func (s *Structure) copyVertex(origIdx int, out *Structure, mapping map[int]int) int {
	if outIdx, ok := mapping[origIdx]; ok {
		return outIdx
	}
	v := s.vertices[origIdx]
	outIdx := out.getOrCreate(v.id, v.kind)
	if v.properties != nil {
		out.vertices[outIdx].properties = v.properties
	}
	mapping[origIdx] = outIdx
	return outIdx
}

// walk is the connected-component walk: marks seed visited,
// copies it into out, then for each of its outgoing/incoming/loop edges
// still unvisited, removes the edge from the unvisited set, copies it to
// out, and recurses on the other endpoint (loops advance no vertex).
func (s *Structure) walk(seed int, out *Structure, mapping map[int]int, visitedV, visitedE []bool) {
	if visitedV[seed] {
		return
	}
	visitedV[seed] = true
	s.copyVertex(seed, out, mapping)

	v := s.vertices[seed]
	for _, edgeSet := range [][]int{v.out, v.in, v.loop} {
		for _, edgeIdx := range edgeSet {
			if visitedE[edgeIdx] {
				continue
			}
			visitedE[edgeIdx] = true

			e := s.edges[edgeIdx]
			fromOut := s.copyVertex(e.from, out, mapping)
			isSelf := e.from == e.to
			var toIdxOut int
			if isSelf {
				toIdxOut = fromOut
			} else {
				toIdxOut = s.copyVertex(e.to, out, mapping)
			}
			out.addEdge(edgeRecord{
				variant:     e.variant,
				from:        fromOut,
				to:          toIdxOut,
				predicate:   e.predicate,
				nativeKind:  e.nativeKind,
				transitive:  e.transitive,
				annotations: e.annotations,
				roleTypes:   e.roleTypes,
				repetition:  e.repetition,
			})

			if e.from != e.to {
				other := e.to
				if other == seed {
					other = e.from
				}
				s.walk(other, out, mapping, visitedV, visitedE)
			}
		}
	}
}
