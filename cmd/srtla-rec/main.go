// Command srtla-rec is the SRTLA link-aggregation receiver: it listens
// for SRTLA overlay packets from a multi-path client, reassembles them
// into one egress SRT flow toward a configured upstream SRT server, and
// fans return traffic (ACKs in particular) back across every active
// path.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/IRLToolkit/srtla/internal/config"
	"github.com/IRLToolkit/srtla/internal/debugapi"
	"github.com/IRLToolkit/srtla/internal/policy"
	"github.com/IRLToolkit/srtla/internal/reactor"
	"github.com/IRLToolkit/srtla/internal/srtprobe"
	"github.com/IRLToolkit/srtla/internal/telemetry"
	"github.com/IRLToolkit/srtla/internal/tui"
)

var version = "dev"

const listenRecvBuf = 32 * 1024 * 1024

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(args) == 1 && args[0] == "-v" {
		fmt.Println(version)
		return 0
	}

	uiFlag := false
	positional := make([]string, 0, len(args))
	for _, a := range args {
		if a == "-ui" {
			uiFlag = true
			continue
		}
		positional = append(positional, a)
	}

	if len(positional) != 3 {
		usage()
		return 0
	}

	listenPort, err := parsePort(positional[0])
	if err != nil {
		usage()
		return 0
	}
	srtHost, srtPort := positional[1], positional[2]

	limits, err := config.FromEnv()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	srtAddr, reachable, err := srtprobe.Probe(slog.Default(), srtHost, srtPort)
	if err != nil {
		slog.Error("failed to resolve SRT upstream", "error", err)
		return 1
	}
	if !reachable {
		slog.Warn("SRT upstream did not respond to induction probe; proceeding anyway", "addr", srtAddr)
	}

	listener, err := net.ListenUDP("udp4", &net.UDPAddr{Port: listenPort})
	if err != nil {
		slog.Error("failed to bind listening socket", "port", listenPort, "error", err)
		return 1
	}
	defer listener.Close()
	if err := listener.SetReadBuffer(listenRecvBuf); err != nil {
		slog.Error("failed to raise listener receive buffer", "error", err)
		return 1
	}

	var admission reactor.AdmissionPolicy
	if scriptPath := os.Getenv("POLICY_SCRIPT"); scriptPath != "" {
		p, err := policy.Load(scriptPath)
		if err != nil {
			slog.Error("failed to load admission policy script", "path", scriptPath, "error", err)
			return 1
		}
		defer p.Close()
		admission = p
		slog.Info("admission policy loaded", "path", scriptPath)
	}

	var events reactor.EventPublisher
	var telPub *telemetry.Publisher
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		subject := os.Getenv("NATS_SUBJECT")
		if subject == "" {
			subject = "srtla.events"
		}
		telPub, err = telemetry.Connect(slog.Default(), natsURL, subject)
		if err != nil {
			slog.Error("failed to connect to NATS", "url", natsURL, "error", err)
			return 1
		}
		defer telPub.Close()
		events = telPub
	}

	rx := reactor.New(slog.Default(), listener, srtAddr, limits, admission, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rx.Run(ctx)
	})

	if debugAddr := os.Getenv("DEBUG_ADDR"); debugAddr != "" {
		srv := debugapi.New(slog.Default(), debugAddr, rx)
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}

	if uiFlag {
		g.Go(func() error {
			err := tui.Run(version, rx)
			cancel()
			return err
		})
	}

	slog.Info("srtla-rec starting",
		"version", version,
		"listen_port", listenPort,
		"srt_addr", srtAddr,
		"srt_reachable", reachable,
		"max_groups", limits.MaxGroups,
		"max_conns_per_group", limits.MaxConnsPerGroup,
	)

	if err := g.Wait(); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range [1, 65535]", port)
	}
	return port, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: srtla-rec -v")
	fmt.Fprintln(os.Stderr, "       srtla-rec LISTEN_PORT SRT_HOST SRT_PORT [-ui]")
}
