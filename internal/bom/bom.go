/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package bom resolves Bill-of-Materials graphs into buildable quantities.

The graph is an adjacency list keyed by parent item id plus an arena of item
records. Items without outgoing edges are leaves and contribute their on-hand
stock directly. Every computation first checks the reachable subgraph for
cycles and refuses to compute anything when one is found.
*/
package bom

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	// ErrInvalidQuantity is returned for edges whose required quantity is not positive.
	ErrInvalidQuantity = errors.New("bom: required quantity must be greater than zero")
	// ErrUnknownItem is returned when the requested item is not part of the graph.
	ErrUnknownItem = errors.New("bom: unknown item")
)

// Item is a stocked item. OnHand below zero is treated as zero.
type Item struct {
	ID     string
	OnHand int64
}

// Edge states that one unit of Parent consumes RequiredQty units of Child.
type Edge struct {
	Parent      string
	Child       string
	RequiredQty int64
}

// CycleError identifies the edge that closes a cycle.
type CycleError struct {
	From string
	To   string
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("bom: cycle detected at edge %s -> %s (%s)", e.From, e.To, strings.Join(e.Path, " -> "))
}

// Graph is an immutable BOM graph.
type Graph struct {
	items    map[string]Item
	children map[string][]Edge
}

// Node is one position in an expanded BOM tree. Shared components appear
// once under every parent that consumes them.
type Node struct {
	ItemID         string  `json:"item_id"`
	RequiredQty    int64   `json:"required_qty"`
	OnHand         int64   `json:"on_hand"`
	BuildableUnits int64   `json:"buildable_units"`
	Children       []*Node `json:"children,omitempty"`
}

// NewGraph validates edges and builds the graph. Items referenced only by
// edges join the arena with zero stock. Duplicate parent/child pairs are
// merged by adding their quantities.
func NewGraph(items []Item, edges []Edge) (*Graph, error) {
	g := &Graph{
		items:    make(map[string]Item, len(items)),
		children: make(map[string][]Edge),
	}
	for _, it := range items {
		if it.OnHand < 0 {
			it.OnHand = 0
		}
		g.items[it.ID] = it
	}

	merged := make(map[[2]string]int)
	for _, e := range edges {
		if err := ValidateEdge(e); err != nil {
			return nil, err
		}
		for _, id := range []string{e.Parent, e.Child} {
			if _, ok := g.items[id]; !ok {
				g.items[id] = Item{ID: id}
			}
		}
		key := [2]string{e.Parent, e.Child}
		if idx, ok := merged[key]; ok {
			g.children[e.Parent][idx].RequiredQty = addSat(g.children[e.Parent][idx].RequiredQty, e.RequiredQty)
			continue
		}
		merged[key] = len(g.children[e.Parent])
		g.children[e.Parent] = append(g.children[e.Parent], e)
	}

	// deterministic traversal order
	for parent := range g.children {
		sort.SliceStable(g.children[parent], func(i, j int) bool {
			return g.children[parent][i].Child < g.children[parent][j].Child
		})
	}
	return g, nil
}

// ValidateEdge rejects edges that would make the engine divide by zero or
// reference nothing.
func ValidateEdge(e Edge) error {
	if e.Parent == "" || e.Child == "" {
		return fmt.Errorf("bom: edge requires both parent and child item ids")
	}
	if e.RequiredQty <= 0 {
		return fmt.Errorf("%w: %s -> %s has %d", ErrInvalidQuantity, e.Parent, e.Child, e.RequiredQty)
	}
	return nil
}

// HasComponents reports whether the item has at least one BOM edge.
func (g *Graph) HasComponents(itemID string) bool {
	return len(g.children[itemID]) > 0
}

// Components returns the direct edges of an item.
func (g *Graph) Components(itemID string) []Edge {
	out := make([]Edge, len(g.children[itemID]))
	copy(out, g.children[itemID])
	return out
}

// OnHand returns the clamped on-hand stock of an item.
func (g *Graph) OnHand(itemID string) int64 {
	return g.items[itemID].OnHand
}

// DetectCycle checks the whole graph.
func (g *Graph) DetectCycle() *CycleError {
	roots := make([]string, 0, len(g.children))
	for id := range g.children {
		roots = append(roots, id)
	}
	sort.Strings(roots)
	return g.findCycle(roots)
}

// WouldCreateCycle reports whether adding parent -> child closes a cycle,
// which is the case when parent is reachable from child.
func (g *Graph) WouldCreateCycle(parent, child string) bool {
	if parent == child {
		return true
	}
	seen := map[string]bool{child: true}
	stack := []string{child}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.children[id] {
			if e.Child == parent {
				return true
			}
			if !seen[e.Child] {
				seen[e.Child] = true
				stack = append(stack, e.Child)
			}
		}
	}
	return false
}

const (
	white = iota
	grey
	black
)

// findCycle is a color-marking DFS over an explicit stack. Grey marks the
// in-progress path, black marks fully explored nodes.
func (g *Graph) findCycle(roots []string) *CycleError {
	type frame struct {
		id   string
		next int
	}
	color := make(map[string]int)

	for _, root := range roots {
		if color[root] != white {
			continue
		}
		color[root] = grey
		stack := []frame{{id: root}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			edges := g.children[top.id]
			if top.next >= len(edges) {
				color[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}
			e := edges[top.next]
			top.next++

			switch color[e.Child] {
			case grey:
				var path []string
				for i := range stack {
					if stack[i].id == e.Child || len(path) > 0 {
						path = append(path, stack[i].id)
					}
				}
				path = append(path, e.Child)
				return &CycleError{From: e.Parent, To: e.Child, Path: path}
			case white:
				color[e.Child] = grey
				stack = append(stack, frame{id: e.Child})
			}
		}
	}
	return nil
}

// evaluation memoizes per-unit leaf requirements for one call.
type evaluation struct {
	g     *Graph
	needs map[string]map[string]int64
}

func (g *Graph) newEvaluation(root string) (*evaluation, error) {
	if _, ok := g.items[root]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownItem, root)
	}
	if cycle := g.findCycle([]string{root}); cycle != nil {
		return nil, cycle
	}
	return &evaluation{g: g, needs: make(map[string]map[string]int64)}, nil
}

// leafNeeds returns how many units of every leaf one unit of itemID consumes,
// summed over all paths. Summing is what keeps a shared leaf from being
// counted once per branch.
func (ev *evaluation) leafNeeds(itemID string) map[string]int64 {
	if n, ok := ev.needs[itemID]; ok {
		return n
	}
	edges := ev.g.children[itemID]
	out := make(map[string]int64)
	if len(edges) == 0 {
		out[itemID] = 1
		ev.needs[itemID] = out
		return out
	}
	for _, e := range edges {
		for leaf, qty := range ev.leafNeeds(e.Child) {
			out[leaf] = addSat(out[leaf], mulSat(e.RequiredQty, qty))
		}
	}
	ev.needs[itemID] = out
	return out
}

func (ev *evaluation) buildable(itemID string) int64 {
	if !ev.g.HasComponents(itemID) {
		return ev.g.items[itemID].OnHand
	}
	units := int64(math.MaxInt64)
	for leaf, qty := range ev.leafNeeds(itemID) {
		if b := ev.g.items[leaf].OnHand / qty; b < units {
			units = b
		}
	}
	return units
}

// EffectiveStock returns the number of units of itemID buildable from the
// current on-hand stock of its leaf components.
func (g *Graph) EffectiveStock(itemID string) (int64, error) {
	ev, err := g.newEvaluation(itemID)
	if err != nil {
		return 0, err
	}
	return ev.buildable(itemID), nil
}

// Expand resolves itemID into a tree annotated with buildable units.
func (g *Graph) Expand(itemID string) (*Node, error) {
	ev, err := g.newEvaluation(itemID)
	if err != nil {
		return nil, err
	}
	subtrees := make(map[string][]*Node)
	var build func(id string, qty int64) *Node
	build = func(id string, qty int64) *Node {
		n := &Node{
			ItemID:         id,
			RequiredQty:    qty,
			OnHand:         g.items[id].OnHand,
			BuildableUnits: ev.buildable(id),
		}
		if kids, ok := subtrees[id]; ok {
			n.Children = kids
			return n
		}
		for _, e := range g.children[id] {
			n.Children = append(n.Children, build(e.Child, e.RequiredQty))
		}
		subtrees[id] = n.Children
		return n
	}
	return build(itemID, 1), nil
}

func addSat(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func mulSat(a, b int64) int64 {
	if a != 0 && b > math.MaxInt64/a {
		return math.MaxInt64
	}
	return a * b
}
