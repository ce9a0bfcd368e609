// Package regsm implements the SRTLA registration state machine: the
// REG1 (group creation) and REG2-client (connection attach) transitions
// from the core spec, each driven by a single inbound datagram on the
// listening socket.
package regsm

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/IRLToolkit/srtla/internal/config"
	"github.com/IRLToolkit/srtla/internal/session"
	"github.com/IRLToolkit/srtla/internal/wire"
)

// Listener is the subset of *net.UDPConn the state machine needs to send
// replies on the shared listening socket.
type Listener interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
}

// AdmissionPolicy is the optional scriptable hook from internal/policy.
// A nil AdmissionPolicy means every request that passes the hard caps
// and address-conflict rules is admitted.
type AdmissionPolicy interface {
	Allow(sourceIP net.IP, liveGroups, liveConns int) bool
}

// EventPublisher is the optional telemetry hook from internal/telemetry.
type EventPublisher interface {
	Publish(event string, fields map[string]any)
}

// Machine drives the registration handshake against a Registry.
type Machine struct {
	log      *slog.Logger
	listener Listener
	registry *session.Registry
	limits   config.Limits
	policy   AdmissionPolicy
	events   EventPublisher

	regErrCount int64
	regNGPCount int64
}

// New creates a registration state machine. log may be nil (defaults to
// slog.Default()); policy and events may be nil (both features disabled).
func New(log *slog.Logger, listener Listener, registry *session.Registry, limits config.Limits, policy AdmissionPolicy, events EventPublisher) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		log:      log.With("component", "regsm"),
		listener: listener,
		registry: registry,
		limits:   limits,
		policy:   policy,
		events:   events,
	}
}

func (m *Machine) totalConns() int {
	n := 0
	for _, g := range m.registry.Groups() {
		n += len(g.Conns())
	}
	return n
}

func (m *Machine) publish(event string, fields map[string]any) {
	if m.events != nil {
		m.events.Publish(event, fields)
	}
}

// HandleReg1 processes a REG1 datagram, possibly creating a new Group.
// It returns the new group on success, or nil if the request was
// refused or the reply failed to send.
func (m *Machine) HandleReg1(src *net.UDPAddr, buf []byte, now time.Time) *session.Group {
	half, ok := wire.ParseReg1(buf)
	if !ok {
		return nil
	}

	if m.registry.Count() >= m.limits.MaxGroups {
		m.log.Warn("refusing REG1: group capacity reached", "src", src, "max_groups", m.limits.MaxGroups)
		m.sendErr(src)
		m.publish("registration_refused", map[string]any{"reason": "max_groups", "src": src.String()})
		return nil
	}

	if g, _ := m.registry.FindByAddr(src); g != nil {
		m.log.Warn("refusing REG1: address already bound to a group", "src", src)
		m.sendErr(src)
		m.publish("registration_refused", map[string]any{"reason": "addr_conflict", "src": src.String()})
		return nil
	}

	if m.policy != nil && !m.policy.Allow(src.IP, m.registry.Count(), m.totalConns()) {
		m.log.Warn("refusing REG1: denied by admission policy", "src", src)
		m.sendErr(src)
		m.publish("registration_refused", map[string]any{"reason": "policy", "src": src.String()})
		return nil
	}

	var serverHalf [16]byte
	if _, err := rand.Read(serverHalf[:]); err != nil {
		m.log.Error("failed to read entropy for group id", "error", err)
		return nil
	}

	var id [wire.SRTLAIDLen]byte
	copy(id[:16], half[:])
	copy(id[16:], serverHalf[:])

	reply := wire.BuildReg2(id)
	n, err := m.listener.WriteToUDP(reply, src)
	if err != nil || n != len(reply) {
		m.log.Warn("REG2 send failed, dropping new group", "src", src, "error", err)
		return nil
	}

	g := m.registry.NewGroup(id, src, now)
	m.registry.Insert(g)
	m.log.Info("group created", "src", src, "group", fmt.Sprintf("%x", id))
	m.publish("group_created", map[string]any{"src": src.String(), "group": fmt.Sprintf("%x", id)})
	return g
}

// HandleReg2Client processes a REG2-client (connection attach) datagram.
// It returns the group the connection now belongs to, or nil if the
// request was refused or the reply failed to send.
func (m *Machine) HandleReg2Client(src *net.UDPAddr, buf []byte, now time.Time) *session.Group {
	id, ok := wire.ParseReg2(buf)
	if !ok {
		return nil
	}

	g, found := m.registry.FindByID(id)
	if !found {
		m.log.Warn("refusing REG2-client: no such group", "src", src)
		m.sendNGP(src)
		m.publish("registration_refused", map[string]any{"reason": "no_such_group", "src": src.String()})
		return nil
	}

	if existingGroup, existingConn := m.registry.FindByAddr(src); existingGroup != nil && existingGroup != g {
		m.log.Warn("refusing REG2-client: address bound to a different group", "src", src)
		m.sendErr(src)
		m.publish("registration_refused", map[string]any{"reason": "addr_conflict", "src": src.String()})
		return nil
	} else if existingGroup == g && existingConn != nil {
		// Idempotent re-attach: fall through to send REG3 and refresh
		// LastAddr without creating a second connection.
		if !m.sendReg3(src) {
			return nil
		}
		g.LastAddr = src
		return g
	}

	if m.policy != nil && !m.policy.Allow(src.IP, m.registry.Count(), m.totalConns()) {
		m.log.Warn("refusing REG2-client: denied by admission policy", "src", src)
		m.sendErr(src)
		m.publish("registration_refused", map[string]any{"reason": "policy", "src": src.String()})
		return nil
	}

	if len(g.Conns()) >= m.limits.MaxConnsPerGroup {
		m.log.Warn("refusing REG2-client: connection capacity reached", "src", src, "max_conns", m.limits.MaxConnsPerGroup)
		m.sendErr(src)
		m.publish("registration_refused", map[string]any{"reason": "max_conns", "src": src.String()})
		return nil
	}

	if !m.sendReg3(src) {
		return nil
	}

	g.AddConn(src, m.limits.RecvAckInt, now)
	g.LastAddr = src
	m.log.Info("connection attached", "src", src, "group", fmt.Sprintf("%x", id), "conns", len(g.Conns()))
	m.publish("connection_attached", map[string]any{"src": src.String(), "group": fmt.Sprintf("%x", id)})
	return g
}

func (m *Machine) sendReg3(src *net.UDPAddr) bool {
	reply := wire.BuildReg3()
	n, err := m.listener.WriteToUDP(reply, src)
	if err != nil || n != len(reply) {
		m.log.Warn("REG3 send failed, aborting attach", "src", src, "error", err)
		return false
	}
	return true
}

func (m *Machine) sendErr(src *net.UDPAddr) {
	m.regErrCount++
	reply := wire.BuildRegErr()
	if _, err := m.listener.WriteToUDP(reply, src); err != nil {
		m.log.Warn("REG_ERR send failed", "src", src, "error", err)
	}
}

func (m *Machine) sendNGP(src *net.UDPAddr) {
	m.regNGPCount++
	reply := wire.BuildRegNGP()
	if _, err := m.listener.WriteToUDP(reply, src); err != nil {
		m.log.Warn("REG_NGP send failed", "src", src, "error", err)
	}
}

// RegErrCount returns the number of REG_ERR replies sent since startup.
func (m *Machine) RegErrCount() int64 { return m.regErrCount }

// RegNGPCount returns the number of REG_NGP replies sent since startup.
func (m *Machine) RegNGPCount() int64 { return m.regNGPCount }
