package policy

import (
	"net"
	"os"
	"path/filepath"
	"testing"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.lua")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadRejectsScriptWithoutAllowRegister(t *testing.T) {
	t.Parallel()

	path := writeScript(t, "x = 1\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("Load accepted a script without allow_register")
	}
}

func TestLoadRejectsSyntaxError(t *testing.T) {
	t.Parallel()

	path := writeScript(t, "function allow_register(\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("Load accepted a script with a syntax error")
	}
}

func TestAllowPlainBoolean(t *testing.T) {
	t.Parallel()

	path := writeScript(t, `
function allow_register(ip, groups, conns)
    return groups < 3
end
`)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer p.Close()

	if !p.Allow(net.ParseIP("127.0.0.1"), 1, 0) {
		t.Errorf("Allow(groups=1) = false, want true")
	}
	if p.Allow(net.ParseIP("127.0.0.1"), 3, 0) {
		t.Errorf("Allow(groups=3) = true, want false")
	}
	if p.LastReason() != "" {
		t.Errorf("LastReason() = %q after a plain boolean return, want empty", p.LastReason())
	}
}

func TestAllowTableVerdictWithReason(t *testing.T) {
	t.Parallel()

	path := writeScript(t, `
function allow_register(ip, groups, conns)
    return {allow = false, reason = "blocked for testing"}
end
`)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer p.Close()

	if p.Allow(net.ParseIP("10.0.0.1"), 0, 0) {
		t.Errorf("Allow() = true, want false")
	}
	if p.LastReason() != "blocked for testing" {
		t.Errorf("LastReason() = %q, want %q", p.LastReason(), "blocked for testing")
	}
}

func TestAllowFailsClosedOnRuntimeError(t *testing.T) {
	t.Parallel()

	path := writeScript(t, `
function allow_register(ip, groups, conns)
    return nil + 1
end
`)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer p.Close()

	if p.Allow(net.ParseIP("127.0.0.1"), 0, 0) {
		t.Errorf("Allow() = true after a runtime error, want fail-closed false")
	}
	if p.LastReason() == "" {
		t.Errorf("LastReason() empty after a runtime error, want the error message")
	}
}

func TestAllowFailsClosedOnBadReturnType(t *testing.T) {
	t.Parallel()

	path := writeScript(t, `
function allow_register(ip, groups, conns)
    return "yes"
end
`)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer p.Close()

	if p.Allow(net.ParseIP("127.0.0.1"), 0, 0) {
		t.Errorf("Allow() = true for a non-boolean, non-table return, want fail-closed false")
	}
}

func TestSourceIPPassedAsString(t *testing.T) {
	t.Parallel()

	path := writeScript(t, `
function allow_register(ip, groups, conns)
    return ip == "192.0.2.1"
end
`)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer p.Close()

	if !p.Allow(net.ParseIP("192.0.2.1"), 0, 0) {
		t.Errorf("Allow() did not see the expected source IP string")
	}
}
