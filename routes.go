package sdntopo

// routes.go converts the switches of a topology and the peer links between them
// into the data structures of the gonum graph package, which has built-in path
// discovery algorithms. Each edge weighs 1, so a shortest path is the one with
// the fewest switch hops; parallel links between two switches are one edge.

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// switchGraph returns the graph of the topology, building it on first use.
// The node id of a switch is its position in t.Switches. Callers hold graphMu.
func (t *Topology) switchGraph() *simple.UndirectedGraph {
	if t.graph != nil {
		return t.graph
	}

	g := simple.NewUndirectedGraph()
	nodeByDpid := make(map[Dpid]simple.Node, len(t.Switches))
	for idx, sw := range t.Switches {
		node := simple.Node(int64(idx))
		g.AddNode(node)
		nodeByDpid[sw.Dpid] = node
	}

	for idx, sw := range t.Switches {
		for _, link := range sw.PeerLinks {
			peer, present := nodeByDpid[link.PeerDpid]
			if !present || peer.ID() == int64(idx) {
				continue
			}
			g.SetEdge(simple.Edge{F: simple.Node(int64(idx)), T: peer})
		}
	}

	t.graph = g
	t.cachedSP = make(map[int64]path.Shortest)
	return g
}

// nodeOf returns the graph node id of the switch with the given dpid
func (t *Topology) nodeOf(dpid Dpid) (int64, error) {
	for idx, sw := range t.Switches {
		if sw.Dpid == dpid {
			return int64(idx), nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownDpid, "dpid %s", dpid)
}

// Path returns the dpids of the switches on a shortest path from src to dst,
// both included. It is an error if dst cannot be reached from src.
func (t *Topology) Path(src, dst Dpid) ([]Dpid, error) {
	srcID, err := t.nodeOf(src)
	if err != nil {
		return nil, err
	}
	dstID, err := t.nodeOf(dst)
	if err != nil {
		return nil, err
	}

	t.graphMu.Lock()
	defer t.graphMu.Unlock()

	g := t.switchGraph()

	// shortest path trees are kept per source
	spTree, present := t.cachedSP[srcID]
	if !present {
		spTree = path.DijkstraFrom(g.Node(srcID), g)
		t.cachedSP[srcID] = spTree
	}

	nodeSeq, _ := spTree.To(dstID)
	if len(nodeSeq) == 0 {
		return nil, errors.Errorf("no path from dpid %s to dpid %s", src, dst)
	}
	return t.convertNodeSeq(nodeSeq), nil
}

// convertNodeSeq maps a sequence of graph nodes back to switch dpids
func (t *Topology) convertNodeSeq(nodeSeq []graph.Node) []Dpid {
	dpids := make([]Dpid, 0, len(nodeSeq))
	for _, node := range nodeSeq {
		dpids = append(dpids, t.Switches[node.ID()].Dpid)
	}
	return dpids
}

// Neighbours returns the dpids of the switches directly cabled to dpid
func (t *Topology) Neighbours(dpid Dpid) ([]Dpid, error) {
	id, err := t.nodeOf(dpid)
	if err != nil {
		return nil, err
	}

	t.graphMu.Lock()
	defer t.graphMu.Unlock()

	ids := []int64{}
	for _, node := range graph.NodesOf(t.switchGraph().From(id)) {
		ids = append(ids, node.ID())
	}
	slices.Sort(ids)

	dpids := make([]Dpid, 0, len(ids))
	for _, nid := range ids {
		dpids = append(dpids, t.Switches[nid].Dpid)
	}
	return dpids, nil
}

// Connected reports whether every switch can reach every other one
func (t *Topology) Connected() bool {
	t.graphMu.Lock()
	defer t.graphMu.Unlock()

	return len(topo.ConnectedComponents(t.switchGraph())) <= 1
}

// IsRing reports whether the switches form a single closed ring
func (t *Topology) IsRing() bool {
	if len(t.Switches) < 3 || !t.Connected() {
		return false
	}

	t.graphMu.Lock()
	defer t.graphMu.Unlock()

	g := t.switchGraph()
	for idx := range t.Switches {
		if g.From(int64(idx)).Len() != 2 {
			return false
		}
	}
	return true
}
