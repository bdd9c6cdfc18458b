// Package semantic expands vague task vocabulary into weighted related terms
// to widen context search.
package semantic

import (
	"sort"
	"strings"
)

// builtinClusters groups terms considered semantically interchangeable.
// Project overrides are merged on top of these at construction.
var builtinClusters = [][]string{
	{"billing", "invoice", "payment", "charge", "subscription"},
	{"login", "auth", "authenticate", "session", "signin", "credentials"},
	{"user", "account", "profile", "member"},
	{"database", "db", "storage", "persistence", "repository"},
	{"api", "endpoint", "route", "handler", "controller"},
	{"test", "spec", "fixture", "assertion"},
	{"config", "settings", "configuration", "options", "preferences"},
	{"error", "exception", "failure", "fault"},
	{"log", "logging", "trace", "audit"},
	{"cache", "memo", "buffer"},
	{"queue", "worker", "job", "task", "scheduler"},
	{"search", "query", "find", "lookup", "filter"},
	{"delete", "remove", "destroy", "purge"},
	{"create", "add", "insert", "new"},
	{"update", "edit", "modify", "patch"},
	{"email", "mail", "notification", "message"},
	{"permission", "role", "access", "authorization", "acl"},
	{"upload", "file", "attachment", "document"},
}

// Graph is an undirected graph over normalized terms. Nodes are integer
// indexed and adjacency lists are sorted, so traversal order is
// deterministic. Immutable after construction.
type Graph struct {
	index map[string]int
	terms []string
	adj   [][]int
}

// NewGraph builds a graph from term clusters: every pair of terms within a
// cluster is connected by an edge. Terms are lower-cased; a term appearing
// in several clusters bridges them.
func NewGraph(clusters [][]string) *Graph {
	g := &Graph{index: make(map[string]int)}

	edges := make(map[int]map[int]bool)
	for _, cluster := range clusters {
		ids := make([]int, 0, len(cluster))
		for _, term := range cluster {
			ids = append(ids, g.intern(Normalize(term)))
		}
		for i, a := range ids {
			for _, b := range ids[i+1:] {
				if a == b {
					continue
				}
				if edges[a] == nil {
					edges[a] = make(map[int]bool)
				}
				if edges[b] == nil {
					edges[b] = make(map[int]bool)
				}
				edges[a][b] = true
				edges[b][a] = true
			}
		}
	}

	g.adj = make([][]int, len(g.terms))
	for node, neighbors := range edges {
		list := make([]int, 0, len(neighbors))
		for n := range neighbors {
			list = append(list, n)
		}
		sort.Ints(list)
		g.adj[node] = list
	}
	return g
}

func (g *Graph) intern(term string) int {
	if id, ok := g.index[term]; ok {
		return id
	}
	id := len(g.terms)
	g.index[term] = id
	g.terms = append(g.terms, term)
	return id
}

// Lookup returns the node index for a normalized term.
func (g *Graph) Lookup(term string) (int, bool) {
	id, ok := g.index[term]
	return id, ok
}

// Term returns the term for a node index.
func (g *Graph) Term(id int) string { return g.terms[id] }

// Neighbors returns the sorted adjacency list for a node.
func (g *Graph) Neighbors(id int) []int { return g.adj[id] }

// Len returns the number of distinct terms in the graph.
func (g *Graph) Len() int { return len(g.terms) }

// Normalize lower-cases and trims a term for graph lookup.
func Normalize(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
