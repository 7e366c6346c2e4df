// Package probe measures the reachability, ledger position and latency of
// Stellar peers, and checks the health of node pods. Every probe is bounded
// by a timeout and reports failure as an error; nothing defaults to healthy.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	"github.com/stellar/stellar-operator/internal/constants"
	operatorerrors "github.com/stellar/stellar-operator/internal/errors"
)

const (
	// DefaultSamples is the number of latency samples taken when unset.
	DefaultSamples = 3
	// DefaultPercentile is the reported latency percentile when unset.
	DefaultPercentile = 95
)

// Target is a peer endpoint probed with one method.
type Target struct {
	// Endpoint is a host name or address.
	Endpoint string
	// Port is the peer port. Zero selects the stellar-core peer port.
	Port   int32
	Method stellarv1alpha1.ProbeMethod
}

// Result is the outcome of a successful probe.
type Result struct {
	Reachable bool
	// LedgerSequence is the peer's last closed ledger, when the method reports it.
	LedgerSequence int64
	Latency        time.Duration
}

// Prober probes peers.
type Prober interface {
	Probe(ctx context.Context, target Target) (Result, error)
}

// LedgerReader reads the last closed ledger of a stellar-core HTTP endpoint.
type LedgerReader interface {
	LedgerSequence(ctx context.Context, coreURL string) (int64, error)
}

// PeerProber implements Prober over TCP, HTTP, ICMP and gRPC health.
type PeerProber struct {
	// Timeout bounds each probe.
	Timeout time.Duration
	// InfoPort is the stellar-core HTTP port serving /info.
	InfoPort int32
	// HorizonPort and SorobanPort override the gateway ports used by Healthy.
	HorizonPort int32
	SorobanPort int32
	httpClient  *http.Client
	now         func() time.Time
}

// NewPeerProber returns a PeerProber with the given per-probe timeout.
func NewPeerProber(timeout time.Duration) *PeerProber {
	if timeout <= 0 {
		timeout = constants.PeerProbeTimeout
	}
	return &PeerProber{
		Timeout:  timeout,
		InfoPort: constants.PortCoreHTTP,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DisableKeepAlives:     true,
				ResponseHeaderTimeout: timeout,
			},
		},
		now: time.Now,
	}
}

// Probe runs one probe of target.
func (p *PeerProber) Probe(ctx context.Context, target Target) (Result, error) {
	if target.Endpoint == "" {
		return Result{}, operatorerrors.Config("probe", fmt.Errorf("endpoint is required"))
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	var (
		res Result
		err error
	)
	start := p.now()
	switch target.Method {
	case stellarv1alpha1.ProbeMethodTCP, "":
		err = p.probeTCP(ctx, target)
	case stellarv1alpha1.ProbeMethodHTTP:
		res.LedgerSequence, err = p.probeHTTP(ctx, target)
	case stellarv1alpha1.ProbeMethodICMP:
		err = p.probeICMP(ctx, target)
	case stellarv1alpha1.ProbeMethodGRPC:
		err = p.probeGRPC(ctx, target)
	default:
		return Result{}, operatorerrors.Config("probe", fmt.Errorf("unsupported probe method %q", target.Method))
	}
	if err != nil {
		return Result{}, operatorerrors.Network("probe "+string(target.Method)+" "+target.Endpoint, err)
	}
	res.Reachable = true
	res.Latency = p.now().Sub(start)
	return res, nil
}

func peerAddress(target Target) string {
	port := target.Port
	if port == 0 {
		port = stellarv1alpha1.DefaultPeerPort
	}
	return net.JoinHostPort(target.Endpoint, strconv.Itoa(int(port)))
}

func (p *PeerProber) probeTCP(ctx context.Context, target Target) error {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", peerAddress(target))
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}

// coreInfo is the subset of the stellar-core /info response the operator reads.
type coreInfo struct {
	Info struct {
		State  string `json:"state"`
		Ledger struct {
			Num int64 `json:"num"`
		} `json:"ledger"`
	} `json:"info"`
}

func (p *PeerProber) probeHTTP(ctx context.Context, target Target) (int64, error) {
	info, err := p.fetchInfo(ctx, target.Endpoint, p.InfoPort)
	if err != nil {
		return 0, err
	}
	return info.Info.Ledger.Num, nil
}

// LedgerSequence implements LedgerReader. coreURL is the base URL of the
// stellar-core HTTP port, for example http://core:11626.
func (p *PeerProber) LedgerSequence(ctx context.Context, coreURL string) (int64, error) {
	if coreURL == "" {
		return 0, operatorerrors.Config("ledger", fmt.Errorf("stellar-core URL is required"))
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	info, err := p.fetchInfoURL(ctx, strings.TrimSuffix(coreURL, "/")+"/info")
	if err != nil {
		return 0, operatorerrors.Network("ledger "+coreURL, err)
	}
	return info.Info.Ledger.Num, nil
}

func (p *PeerProber) fetchInfo(ctx context.Context, host string, port int32) (*coreInfo, error) {
	return p.fetchInfoURL(ctx, fmt.Sprintf("http://%s/info", net.JoinHostPort(host, strconv.Itoa(int(port)))))
}

func (p *PeerProber) fetchInfoURL(ctx context.Context, url string) (*coreInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("info returned status %d", resp.StatusCode)
	}
	var info coreInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode info: %w", err)
	}
	return &info, nil
}

func (p *PeerProber) probeICMP(ctx context.Context, target Target) error {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, target.Endpoint)
	if err != nil {
		return err
	}
	var ip net.IP
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			ip = v4
			break
		}
	}
	if ip == nil {
		return fmt.Errorf("no IPv4 address for %s", target.Endpoint)
	}

	// Unprivileged datagram ICMP; requires net.ipv4.ping_group_range to include the operator GID.
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return fmt.Errorf("open icmp socket: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{ID: os.Getpid() & 0xffff, Seq: 1, Data: []byte("stellar-operator")},
	}
	payload, err := msg.Marshal(nil)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if _, err := conn.WriteTo(payload, &net.UDPAddr{IP: ip}); err != nil {
		return err
	}

	buf := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return err
		}
		reply, err := icmp.ParseMessage(ipv4.ICMPTypeEchoReply.Protocol(), buf[:n])
		if err != nil {
			continue
		}
		if reply.Type == ipv4.ICMPTypeEchoReply {
			return nil
		}
	}
}

func (p *PeerProber) probeGRPC(ctx context.Context, target Target) error {
	conn, err := grpc.NewClient(peerAddress(target), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close()
	}()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("health status %s", resp.GetStatus())
	}
	return nil
}

// Measure probes target samples times and returns the given latency percentile
// of the successful probes. It fails only when every sample fails.
func Measure(ctx context.Context, p Prober, target Target, samples, percentile int) (time.Duration, Result, error) {
	if samples <= 0 {
		samples = DefaultSamples
	}
	if percentile <= 0 || percentile > 100 {
		percentile = DefaultPercentile
	}

	latencies := make([]time.Duration, 0, samples)
	var (
		last    Result
		lastErr error
	)
	for i := 0; i < samples; i++ {
		if err := ctx.Err(); err != nil {
			return 0, Result{}, operatorerrors.Network("measure", err)
		}
		res, err := p.Probe(ctx, target)
		if err != nil {
			lastErr = err
			continue
		}
		last = res
		latencies = append(latencies, res.Latency)
	}
	if len(latencies) == 0 {
		return 0, Result{}, lastErr
	}
	return Percentile(latencies, percentile), last, nil
}

// Percentile returns the p-th percentile of values using the nearest-rank
// index ceil(p/100*n)-1. values is not modified.
func Percentile(values []time.Duration, p int) time.Duration {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]time.Duration, n)
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(math.Ceil(float64(p)/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}
