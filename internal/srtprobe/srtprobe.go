// Package srtprobe implements the startup reachability probe: one SRT
// induction-handshake datagram sent to each resolved candidate address
// for the configured SRT server, picking the first that responds.
package srtprobe

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/IRLToolkit/srtla/internal/wire"
)

const probeTimeout = time.Second

// Probe resolves host:port and sends an induction handshake to each
// candidate IPv4 address. It returns the selected address and whether
// it actually responded ("reachable"); a non-nil error means resolution
// itself failed, which is fatal to startup. When no candidate responds,
// the first resolved address is returned with reachable=false and a
// warning is logged -- the receiver still starts, since the SRT server
// may simply be configured to ignore unsolicited probes.
func Probe(log *slog.Logger, host, port string) (addr *net.UDPAddr, reachable bool, err error) {
	if log == nil {
		log = slog.Default()
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, false, fmt.Errorf("srtprobe: invalid SRT port %q: %w", port, err)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, false, fmt.Errorf("srtprobe: resolve %q: %w", host, err)
	}

	var candidates []*net.UDPAddr
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			candidates = append(candidates, &net.UDPAddr{IP: v4, Port: portNum})
		}
	}
	if len(candidates) == 0 {
		return nil, false, fmt.Errorf("srtprobe: no IPv4 address found for %q", host)
	}

	induction := wire.BuildInductionProbe()
	for _, cand := range candidates {
		if probeOne(cand, induction) {
			log.Info("SRT server reachable", "addr", cand)
			return cand, true, nil
		}
	}

	log.Warn("no candidate SRT server address responded to induction probe; proceeding anyway", "addr", candidates[0])
	return candidates[0], false, nil
}

func probeOne(addr *net.UDPAddr, induction []byte) bool {
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return false
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(probeTimeout)); err != nil {
		return false
	}
	if _, err := conn.Write(induction); err != nil {
		return false
	}

	buf := make([]byte, wire.InductionPacketLen+64)
	n, err := conn.Read(buf)
	if err != nil {
		return false
	}
	return wire.IsInductionResponse(buf[:n])
}
