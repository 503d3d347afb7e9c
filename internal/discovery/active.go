package discovery

// Active discovery pipeline: bootstrap peer probing, UDP multicast
// announcements, and bounded-concurrency subnet port scanning
// (spec §4.2 "Active discovery pipeline").

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	multicastAddr    = "224.0.1.75:37775"
	multicastListen  = 35 * time.Second
	bootstrapTimeout = 2 * time.Second
	portScanTimeout  = 50 * time.Millisecond
	portScanMaxConc  = 50
)

// BootstrapSource probes a fixed list of bootstrap peer addresses.
type BootstrapSource struct {
	Peers      []string
	dialerFunc func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewBootstrapSource(peers []string) *BootstrapSource {
	d := &net.Dialer{}
	return &BootstrapSource{Peers: peers, dialerFunc: d.DialContext}
}

func (b *BootstrapSource) Discover(ctx context.Context, p Protocol) ([]Sighting, error) {
	if p != ProtoUDPMulticast && p != ProtoMDNS {
		return nil, nil
	}
	var out []Sighting
	for _, addr := range b.Peers {
		host := hostOf(addr)
		if host == "localhost" || host == "127.0.0.1" || host == "::1" {
			continue // reject localhost
		}
		probeCtx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
		conn, err := b.dialerFunc(probeCtx, "tcp", addr)
		cancel()
		if err != nil {
			continue
		}
		_ = conn.Close()
		out = append(out, Sighting{Address: addr, Protocol: p, SeenAt: time.Now()})
	}
	return out, nil
}

// MulticastSource listens for well-formed UDP multicast announcements on
// 224.0.1.75:37775, accepting only payloads containing node_id and
// mesh_port (spec §4.2 step 2).
type MulticastSource struct {
	ListenAddr string
}

func NewMulticastSource() *MulticastSource {
	return &MulticastSource{ListenAddr: multicastAddr}
}

func (m *MulticastSource) Discover(ctx context.Context, p Protocol) ([]Sighting, error) {
	if p != ProtoUDPMulticast {
		return nil, nil
	}
	udpAddr, err := net.ResolveUDPAddr("udp", m.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve multicast addr: %w", err)
	}
	conn, err := net.ListenMulticastUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen multicast: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(multicastListen)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	var out []Sighting
	buf := make([]byte, 512)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			break // timeout or listener closed
		}
		ann, ok := parseAnnouncement(buf[:n])
		if !ok {
			continue // malformed announcement, drop
		}
		nodeID := ann.NodeID
		out = append(out, Sighting{
			Address:  fmt.Sprintf("%s:%d", src.IP.String(), ann.MeshPort),
			Protocol: ProtoUDPMulticast,
			NodeID:   &nodeID,
			SeenAt:   time.Now(),
		})
		select {
		case <-ctx.Done():
			return out, nil
		default:
		}
	}
	return out, nil
}

// PortScanSource scans the current /24 subnet on a fixed set of ports
// with bounded concurrency (spec §4.2 step 3).
type PortScanSource struct {
	Ports       []int
	Concurrency int
	localIPv4   func() (net.IP, error)
}

func NewPortScanSource(ports []int) *PortScanSource {
	return &PortScanSource{Ports: ports, Concurrency: portScanMaxConc, localIPv4: localIPv4}
}

func localIPv4() (net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, fmt.Errorf("no non-loopback ipv4 address found")
}

func (s *PortScanSource) Discover(ctx context.Context, p Protocol) ([]Sighting, error) {
	if p != ProtoPortScan {
		return nil, nil
	}
	ip, err := s.localIPv4()
	if err != nil {
		return nil, err
	}
	prefix := strings.Join(strings.Split(ip.String(), ".")[:3], ".")

	type target struct {
		host string
		port int
	}
	var targets []target
	for host := 1; host < 255; host++ {
		addr := fmt.Sprintf("%s.%d", prefix, host)
		if addr == ip.String() {
			continue
		}
		for _, port := range s.Ports {
			targets = append(targets, target{addr, port})
		}
	}

	sem := make(chan struct{}, s.Concurrency)
	var mu sync.Mutex
	var out []Sighting
	var wg sync.WaitGroup

	dialer := &net.Dialer{Timeout: portScanTimeout}
	for _, tg := range targets {
		select {
		case <-ctx.Done():
			wg.Wait()
			return out, nil
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(tg target) {
			defer wg.Done()
			defer func() { <-sem }()
			addr := fmt.Sprintf("%s:%d", tg.host, tg.port)
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				return
			}
			_ = conn.Close()
			mu.Lock()
			out = append(out, Sighting{Address: addr, Protocol: ProtoPortScan, SeenAt: time.Now()})
			mu.Unlock()
		}(tg)
	}
	wg.Wait()
	return out, nil
}
