package semantic

import "sort"

// Defaults for the breadth-first expansion. Both are tunables, not
// guarantees: depth bounds how far a query bleeds into neighboring
// clusters, decay sets how fast confidence falls per hop.
const (
	DefaultMaxDepth = 2
	DefaultDecay    = 0.7
)

// Expansion maps each related term to a confidence in (0,1]. The query term
// itself is always present at confidence 1.0.
type Expansion map[string]float64

// WeightedTerm is one entry of a ranked expansion.
type WeightedTerm struct {
	Term       string
	Confidence float64
}

// Ranked returns the expansion sorted by confidence descending, then term
// ascending for a stable order.
func (e Expansion) Ranked() []WeightedTerm {
	out := make([]WeightedTerm, 0, len(e))
	for term, conf := range e {
		out = append(out, WeightedTerm{Term: term, Confidence: conf})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// Expander performs semantic term expansion over an immutable synonym
// graph. Safe for concurrent use.
type Expander struct {
	graph    *Graph
	maxDepth int
	decay    float64
}

// Option configures an Expander.
type Option func(*Expander)

// WithMaxDepth overrides the BFS depth bound.
func WithMaxDepth(depth int) Option {
	return func(e *Expander) { e.maxDepth = depth }
}

// WithDecay overrides the per-hop confidence decay.
func WithDecay(decay float64) Option {
	return func(e *Expander) { e.decay = decay }
}

// NewExpander builds an expander over the builtin clusters merged with any
// project-supplied override clusters.
func NewExpander(overrides [][]string, opts ...Option) *Expander {
	clusters := make([][]string, 0, len(builtinClusters)+len(overrides))
	clusters = append(clusters, builtinClusters...)
	clusters = append(clusters, overrides...)

	e := &Expander{
		graph:    NewGraph(clusters),
		maxDepth: DefaultMaxDepth,
		decay:    DefaultDecay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand returns the weighted related terms for a query. Confidence is
// decay^depth for the shortest path to each term; the origin is pinned at
// 1.0 regardless of cycles back to it. Unknown terms expand to themselves.
func (e *Expander) Expand(term string) Expansion {
	norm := Normalize(term)
	result := Expansion{norm: 1.0}

	origin, ok := e.graph.Lookup(norm)
	if !ok {
		return result
	}

	// BFS by depth ring. Adjacency lists are sorted, so the visit order
	// (and therefore tie-breaking) is deterministic.
	visited := make([]bool, e.graph.Len())
	visited[origin] = true
	frontier := []int{origin}

	confidence := 1.0
	for depth := 1; depth <= e.maxDepth && len(frontier) > 0; depth++ {
		confidence *= e.decay
		var next []int
		for _, node := range frontier {
			for _, neighbor := range e.graph.Neighbors(node) {
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true
				result[e.graph.Term(neighbor)] = confidence
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return result
}
