// Package lsdb implements the replicated Link-State Database: per-router
// LSA storage with sequence-number/age merge semantics, periodic aging and
// MaxAge flushing, and Dijkstra shortest-path computation over the graph
// the stored LSAs describe (§4.1).
package lsdb

import (
	"container/heap"
	"sort"

	"github.com/linkstate/routerd/internal/config"
	"github.com/linkstate/routerd/proto"
)

// Database is a map of RouterID to LSA, guarded by the caller (router.Router
// already serializes all mutation onto its own lock, per §5 — the database
// itself is not safe for concurrent use without external synchronization,
// matching the teacher's router-owns-the-lock pattern).
type Database struct {
	cfg     config.Config
	entries map[proto.RouterID]*proto.LSAPacket
}

// New creates an empty database using cfg for age/tolerance comparisons.
func New(cfg config.Config) *Database {
	return &Database{
		cfg:     cfg,
		entries: make(map[proto.RouterID]*proto.LSAPacket),
	}
}

// Insert merges lsa into the database (§4.1). It returns true if the LSA
// was accepted (either because no entry existed yet, or because it won the
// seq_no/age comparison against the stored copy) and false if it was
// dropped as stale. The caller is responsible for noticing the startup-echo
// special case (AdvRouter == local hostname && SeqNo == 1 on a drop) since
// that requires knowledge the database itself doesn't have.
func (db *Database) Insert(lsa *proto.LSAPacket) bool {
	existing, ok := db.entries[lsa.AdvRouter]
	if !ok {
		db.entries[lsa.AdvRouter] = lsa.Clone()
		return true
	}

	accept := lsa.SeqNo > existing.SeqNo ||
		(lsa.SeqNo == existing.SeqNo && lsa.Age+db.cfg.AgeTolerance < existing.Age)
	if !accept {
		return false
	}

	db.entries[lsa.AdvRouter] = lsa.Clone()
	return true
}

// Get returns the stored LSA for id, if any. The returned pointer is the
// database's own copy; callers must not mutate it.
func (db *Database) Get(id proto.RouterID) (*proto.LSAPacket, bool) {
	lsa, ok := db.entries[id]
	return lsa, ok
}

// Remove deletes the entry for id, if present.
func (db *Database) Remove(id proto.RouterID) {
	delete(db.entries, id)
}

// Len returns the number of entries currently stored.
func (db *Database) Len() int {
	return len(db.entries)
}

// IDs returns the router IDs currently present, in stable (sorted) order so
// callers that need deterministic iteration (e.g. a bulk LSDB sync) don't
// have to sort themselves.
func (db *Database) IDs() []proto.RouterID {
	ids := make([]proto.RouterID, 0, len(db.entries))
	for id := range db.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Each calls fn once per (router ID, LSA) pair currently stored, in stable
// order. fn must not mutate the database.
func (db *Database) Each(fn func(id proto.RouterID, lsa *proto.LSAPacket)) {
	for _, id := range db.IDs() {
		fn(id, db.entries[id])
	}
}

// Update advances every entry's age by ageIncrement (expressed in the same
// units as MaxAge) and removes any entry whose age has reached MaxAge,
// returning the flushed router IDs. Per §9, this intentionally does not
// trigger route recomputation — that is the caller's decision.
func (db *Database) Update(ageIncrement uint32) []proto.RouterID {
	var flushed []proto.RouterID

	for id, lsa := range db.entries {
		lsa.Age += ageIncrement
		if lsa.Age >= db.cfg.MaxAge {
			delete(db.entries, id)
			flushed = append(flushed, id)
		}
	}

	sort.Slice(flushed, func(i, j int) bool { return flushed[i] < flushed[j] })
	return flushed
}

// ShortestPath is one entry of the result of ShortestPaths: the next hop to
// take from source towards a destination, and the total cost of that path.
type ShortestPath struct {
	NextHop proto.RouterID
	Cost    float64
}

// ShortestPaths runs Dijkstra from source over the undirected graph whose
// vertices are the routers present in the database and whose edges are
// derived from each LSA's Networks: every (peer, cost) entry contributes an
// edge AdvRouter <-> peer with that cost (§4.1). The result always includes
// source itself, mapped to (source, 0). Ties in tentative distance are
// broken in favor of the lexicographically smaller RouterID, keeping SPF
// deterministic across routers computing the same topology.
func (db *Database) ShortestPaths(source proto.RouterID) map[proto.RouterID]ShortestPath {
	// source need not already have a stored LSA (e.g. before the local
	// router has advertised anything); the result still seeds it at cost 0.
	adjacency := buildAdjacency(db.entries)

	dist := make(map[proto.RouterID]float64)
	nextHop := make(map[proto.RouterID]proto.RouterID)
	visited := make(map[proto.RouterID]bool)

	dist[source] = 0
	nextHop[source] = source

	pq := &priorityQueue{{id: source, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		current := heap.Pop(pq).(*pqItem)
		if visited[current.id] {
			continue
		}
		visited[current.id] = true

		neighbors := adjacency[current.id]
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].peer < neighbors[j].peer })

		for _, edge := range neighbors {
			if visited[edge.peer] {
				continue
			}

			candidate := dist[current.id] + edge.cost
			existing, known := dist[edge.peer]

			var candidateNextHop proto.RouterID
			if current.id == source {
				candidateNextHop = edge.peer
			} else {
				candidateNextHop = nextHop[current.id]
			}

			better := !known || candidate < existing
			tie := known && candidate == existing && candidateNextHop < nextHop[edge.peer]

			if better {
				dist[edge.peer] = candidate
				nextHop[edge.peer] = candidateNextHop
				heap.Push(pq, &pqItem{id: edge.peer, dist: candidate})
			} else if tie {
				// Equal-cost alternative whose propagated next hop is
				// lexicographically smaller: prefer it, per the spec's
				// determinism tie-break.
				nextHop[edge.peer] = candidateNextHop
			}
		}
	}

	result := make(map[proto.RouterID]ShortestPath, len(dist))
	for id, d := range dist {
		result[id] = ShortestPath{NextHop: nextHop[id], Cost: d}
	}
	return result
}

type edge struct {
	peer proto.RouterID
	cost float64
}

func buildAdjacency(entries map[proto.RouterID]*proto.LSAPacket) map[proto.RouterID][]edge {
	adjacency := make(map[proto.RouterID][]edge)
	for router, lsa := range entries {
		for _, net := range lsa.Networks {
			adjacency[router] = append(adjacency[router], edge{peer: net.Peer, cost: net.Cost})
			adjacency[net.Peer] = append(adjacency[net.Peer], edge{peer: router, cost: net.Cost})
		}
	}
	return adjacency
}

type pqItem struct {
	id   proto.RouterID
	dist float64
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].dist != pq[j].dist {
		return pq[i].dist < pq[j].dist
	}
	return pq[i].id < pq[j].id
}
func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *priorityQueue) Push(x any) {
	*pq = append(*pq, x.(*pqItem))
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}
