// Package policy implements an optional, scriptable admission hook for
// the registration state machine: a Lua predicate that can narrow (never
// widen) which REG1/REG2-client requests are accepted, following the
// teacher pack's Lua-config convention (nabu's lua.ReadLuaConfig) but
// evaluating a function rather than mapping a config table.
package policy

import (
	"fmt"
	"net"

	"github.com/yuin/gluamapper"
	lua "github.com/yuin/gopher-lua"
)

// luaFuncName is the global function a policy script must define:
//
//	function allow_register(source_ip, live_group_count, live_conn_count)
//	    return true
//	end
const luaFuncName = "allow_register"

// Policy evaluates admission requests against a loaded Lua script. It is
// only ever called from the single reactor goroutine, so the underlying
// *lua.LState (which is not safe for concurrent use) is never shared
// across goroutines.
type Policy struct {
	state      *lua.LState
	fn         lua.LValue
	lastReason string
}

// Load reads and executes the Lua script at path, which must define
// allow_register. The state is kept open for the lifetime of the
// Policy; callers should Close it on shutdown.
func Load(path string) (*Policy, error) {
	L := lua.NewState()

	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("policy: load %s: %w", path, err)
	}

	fn := L.GetGlobal(luaFuncName)
	if fn.Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("policy: %s does not define a %s function", path, luaFuncName)
	}

	return &Policy{state: L, fn: fn}, nil
}

// verdict is the shape a script may return instead of a bare boolean,
// to attach a human-readable reason to a rejection.
type verdict struct {
	Allow  bool
	Reason string
}

// Allow reports whether a request should be admitted. On any scripting
// error it fails closed (returns false) and never panics the reactor.
// A script may return either a plain boolean or a table of the form
// {allow = false, reason = "..."}; the latter is mapped with
// gluamapper and its reason surfaced through LastReason.
func (p *Policy) Allow(sourceIP net.IP, liveGroups, liveConns int) bool {
	err := p.state.CallByParam(lua.P{
		Fn:      p.fn,
		NRet:    1,
		Protect: true,
	}, lua.LString(sourceIP.String()), lua.LNumber(liveGroups), lua.LNumber(liveConns))
	if err != nil {
		p.lastReason = err.Error()
		return false
	}

	ret := p.state.Get(-1)
	p.state.Pop(1)

	switch v := ret.(type) {
	case lua.LBool:
		p.lastReason = ""
		return bool(v)
	case *lua.LTable:
		var result verdict
		if err := gluamapper.Map(v, &result); err != nil {
			p.lastReason = fmt.Sprintf("malformed verdict table: %v", err)
			return false
		}
		p.lastReason = result.Reason
		return result.Allow
	default:
		p.lastReason = "allow_register did not return a boolean or table"
		return false
	}
}

// LastReason returns the reason attached to the most recent Allow call's
// verdict, if the script supplied one. It is empty after a plain
// boolean return.
func (p *Policy) LastReason() string {
	return p.lastReason
}

// Close releases the Lua state.
func (p *Policy) Close() {
	p.state.Close()
}
