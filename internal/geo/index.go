package geo

import (
	"sort"

	ctgeom "github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/twpayne/go-geom"
)

// searchPad widens the degenerate query box of a point lookup so that
// bounding boxes touching the point are still returned by the tree.
const searchPad = 1e-9

// Index is an R-tree over polygonal geometries keyed by caller-supplied ids.
// Lookups return ids in ascending order so that "first match" is stable.
// An Index is not safe for concurrent Insert; concurrent reads after the last
// Insert are fine.
type Index struct {
	tree  *rtree.Rtree
	ids   map[*ctgeom.Bounds]int
	geoms map[int]geom.T
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		tree:  rtree.NewTree(25, 50),
		ids:   make(map[*ctgeom.Bounds]int),
		geoms: make(map[int]geom.T),
	}
}

// Insert adds g under id. Non-areal and empty geometries are ignored since
// they can never contain a point.
func (ix *Index) Insert(id int, g geom.T) {
	if !IsPolygonal(Classify(g)) {
		return
	}
	b := g.Bounds()
	if b == nil || b.IsEmpty() {
		return
	}
	key := &ctgeom.Bounds{
		Min: ctgeom.Point{X: b.Min(0), Y: b.Min(1)},
		Max: ctgeom.Point{X: b.Max(0), Y: b.Max(1)},
	}
	ix.ids[key] = id
	ix.geoms[id] = g
	ix.tree.Insert(key)
}

// Len returns the number of indexed geometries.
func (ix *Index) Len() int {
	return len(ix.geoms)
}

// Containing returns the ids of all indexed geometries that strictly contain c,
// in ascending id order.
func (ix *Index) Containing(c geom.Coord) []int {
	query := &ctgeom.Bounds{
		Min: ctgeom.Point{X: c[0] - searchPad, Y: c[1] - searchPad},
		Max: ctgeom.Point{X: c[0] + searchPad, Y: c[1] + searchPad},
	}
	var out []int
	for _, hit := range ix.tree.SearchIntersect(query) {
		key, ok := hit.(*ctgeom.Bounds)
		if !ok {
			continue
		}
		id, ok := ix.ids[key]
		if !ok {
			continue
		}
		if Within(c, ix.geoms[id]) {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}
