package session

import (
	"net"
	"time"

	"github.com/IRLToolkit/srtla/internal/wire"
)

// Registry is the in-memory index over active groups and connections.
// Lookups are deliberately linear: MaxGroups and MaxConnsPerGroup are
// small (tens to low hundreds), so a hash index would only add
// complexity. See the Linear scans design note for the drop-in
// replacement if the caps ever grow.
type Registry struct {
	groups  []*Group
	nextSeq uint64
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Count returns the number of live groups.
func (r *Registry) Count() int { return len(r.groups) }

// Groups returns the live groups. Callers must not retain the slice
// across a mutation (Insert/Remove may reallocate it).
func (r *Registry) Groups() []*Group { return r.groups }

// NewGroup constructs a Group with the given id and a freshly allocated
// stable handle, but does not insert it into the registry; callers
// insert only after the REG2 reply has been sent successfully (see the
// registration state machine).
func (r *Registry) NewGroup(id [wire.SRTLAIDLen]byte, addr *net.UDPAddr, now time.Time) *Group {
	r.nextSeq++
	return &Group{
		ID:        id,
		handle:    r.nextSeq,
		LastAddr:  addr,
		CreatedAt: now,
	}
}

// Insert adds a group to the registry.
func (r *Registry) Insert(g *Group) {
	r.groups = append(r.groups, g)
}

// Remove removes a group from the registry. It does not touch the
// group's upstream socket or reactor registration; destroying a group
// is the reactor's job (it closes and deregisters the socket after
// calling Remove), per the core spec's group-registry contract.
func (r *Registry) Remove(g *Group) {
	for i, existing := range r.groups {
		if existing == g {
			r.groups = append(r.groups[:i], r.groups[i+1:]...)
			return
		}
	}
}

// FindByID scans groups comparing ids in constant time, returning the
// matching group or false.
func (r *Registry) FindByID(id [wire.SRTLAIDLen]byte) (*Group, bool) {
	for _, g := range r.groups {
		if wire.ConstantTimeEqual(g.ID[:], id[:]) {
			return g, true
		}
	}
	return nil, false
}

// FindByHandle resolves a group by its stable reactor handle. Dispatch
// re-resolves by handle immediately before processing an upstream-socket
// event, so a group destroyed earlier in the same batch is correctly
// seen as gone rather than dispatched against a stale reference.
func (r *Registry) FindByHandle(handle uint64) (*Group, bool) {
	for _, g := range r.groups {
		if g.handle == handle {
			return g, true
		}
	}
	return nil, false
}

// FindByAddr scans for a peer address: first any connection's Addr,
// else any group's LastAddr. Either return value may be nil/false: a
// match on LastAddr alone returns a nil Connection, meaning the address
// belongs to the group but isn't (yet, or any longer) bound to a
// specific connection. The nested scan is intentional: the outer loop
// is over groups, the inner loop is over a single group's connections.
func (r *Registry) FindByAddr(addr *net.UDPAddr) (*Group, *Connection) {
	for _, g := range r.groups {
		for _, c := range g.conns {
			if addrEqual(c.Addr, addr) {
				return g, c
			}
		}
	}
	for _, g := range r.groups {
		if addrEqual(g.LastAddr, addr) {
			return g, nil
		}
	}
	return nil, nil
}

// AddConn creates and attaches a new connection to g. Callers must
// already have checked MaxConnsPerGroup and the address-conflict rules;
// AddConn does not re-check them.
func (g *Group) AddConn(addr *net.UDPAddr, recvAckInt int, now time.Time) *Connection {
	c := newConnection(addr, recvAckInt, now)
	g.conns = append(g.conns, c)
	return c
}

// RemoveConn detaches a connection from g by identity.
func (g *Group) RemoveConn(c *Connection) {
	for i, existing := range g.conns {
		if existing == c {
			g.conns = append(g.conns[:i], g.conns[i+1:]...)
			return
		}
	}
}
