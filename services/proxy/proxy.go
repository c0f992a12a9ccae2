// Package proxy picks the fastest working proxy from a published list
package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"sjsage522/feedscanner/logger"
	"sjsage522/feedscanner/pkg/errors"

	"golang.org/x/sync/errgroup"
)

// ProxyManager hands out proxies for outgoing page loads
type ProxyManager interface {
	UpdateProxies(ctx context.Context) error
	GetFastestProxy(ctx context.Context) (*ProxyInfo, error)
}

// ProxyInfo is a tested proxy
type ProxyInfo struct {
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	Type     string        `json:"type"`
	Latency  time.Duration `json:"latency"`
	LastTest time.Time     `json:"last_test"`
	Working  bool          `json:"working"`
}

// URL returns the proxy in scheme://host:port form
func (p *ProxyInfo) URL() string {
	return p.Type + "://" + net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// Options tunes list testing
type Options struct {
	// UpdateInterval is how long a tested list stays fresh
	UpdateInterval time.Duration
	// DialTimeout bounds each latency probe
	DialTimeout time.Duration
	// Keep is how many of the fastest proxies are kept
	Keep int
	// Concurrency bounds parallel probes
	Concurrency int
}

// DefaultOptions returns the settings used by the scanner
func DefaultOptions() Options {
	return Options{
		UpdateInterval: 30 * time.Minute,
		DialTimeout:    5 * time.Second,
		Keep:           5,
		Concurrency:    10,
	}
}

// ProxyManagerImpl loads proxies from a plain-text list, one host:port or
// scheme://host:port per line. Entries without a scheme are socks5.
type ProxyManagerImpl struct {
	listURL string
	client  *http.Client
	opts    Options
	log     *logger.Logger

	mutex      sync.RWMutex
	proxies    []ProxyInfo
	lastUpdate time.Time
}

var _ ProxyManager = (*ProxyManagerImpl)(nil)

// NewProxyManager creates a manager for the list at listURL
func NewProxyManager(listURL string, client *http.Client, opts Options) *ProxyManagerImpl {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Keep < 1 {
		opts.Keep = 1
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &ProxyManagerImpl{
		listURL: listURL,
		client:  client,
		opts:    opts,
		log:     logger.ForWorker().WithField("component", "proxy"),
	}
}

// ParseList reads a proxy list, skipping blanks, comments and bad entries
func ParseList(r io.Reader) []ProxyInfo {
	var proxies []ProxyInfo
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if p := parseProxy(line); p != nil {
			proxies = append(proxies, *p)
		}
	}
	return proxies
}

func parseProxy(line string) *ProxyInfo {
	kind := "socks5"
	if scheme, rest, ok := strings.Cut(line, "://"); ok {
		kind = strings.ToLower(scheme)
		line = rest
	}
	switch kind {
	case "socks5", "http", "https":
	default:
		return nil
	}

	if fields := strings.Fields(line); len(fields) > 0 {
		line = fields[0]
	}
	host, portStr, err := net.SplitHostPort(line)
	if err != nil || host == "" {
		return nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return nil
	}
	return &ProxyInfo{Host: host, Port: port, Type: kind}
}

func (pm *ProxyManagerImpl) fetchList(ctx context.Context) ([]ProxyInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pm.listURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := pm.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proxy list returned %d", resp.StatusCode)
	}
	return ParseList(resp.Body), nil
}

// testProxyLatency dials the proxy and, for socks5, checks the no-auth
// handshake
func (pm *ProxyManagerImpl) testProxyLatency(ctx context.Context, p *ProxyInfo) {
	start := time.Now()
	dialer := net.Dialer{Timeout: pm.opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(p.Host, strconv.Itoa(p.Port)))
	if err != nil {
		p.Working = false
		p.Latency = time.Hour
		return
	}
	defer conn.Close()

	if p.Type == "socks5" && !testSOCKS5Handshake(conn, pm.opts.DialTimeout) {
		p.Working = false
		p.Latency = time.Hour
		return
	}

	p.Working = true
	p.Latency = time.Since(start)
	p.LastTest = time.Now()
}

func testSOCKS5Handshake(conn net.Conn, timeout time.Duration) bool {
	conn.SetDeadline(time.Now().Add(timeout))
	defer conn.SetDeadline(time.Time{})

	// VER=5, NMETHODS=1, METHODS=no authentication
	if _, err := conn.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		return false
	}
	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return false
	}
	return resp[0] == 0x05 && resp[1] == 0x00
}

// UpdateProxies fetches the list and keeps the fastest working entries.
// A failed update keeps the previous list when there is one.
func (pm *ProxyManagerImpl) UpdateProxies(ctx context.Context) error {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	return pm.update(ctx)
}

func (pm *ProxyManagerImpl) update(ctx context.Context) error {
	if time.Since(pm.lastUpdate) < pm.opts.UpdateInterval && len(pm.proxies) > 0 {
		return nil
	}

	candidates, err := pm.fetchList(ctx)
	if err == nil && len(candidates) == 0 {
		err = fmt.Errorf("proxy list is empty")
	}
	if err != nil {
		if len(pm.proxies) > 0 {
			pm.log.Warn().Err(err).Int("existing_count", len(pm.proxies)).Msg("Keeping existing proxies")
			return nil
		}
		return errors.NewNavigation("proxy", pm.listURL, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pm.opts.Concurrency)
	for i := range candidates {
		p := &candidates[i]
		g.Go(func() error {
			pm.testProxyLatency(gctx, p)
			return nil
		})
	}
	_ = g.Wait()

	working := candidates[:0]
	for _, p := range candidates {
		if p.Working {
			working = append(working, p)
		}
	}
	sort.Slice(working, func(i, j int) bool {
		return working[i].Latency < working[j].Latency
	})
	if len(working) > pm.opts.Keep {
		working = working[:pm.opts.Keep]
	}

	pm.proxies = working
	pm.lastUpdate = time.Now()
	pm.log.Info().Int("tested", len(candidates)).Int("working", len(working)).Msg("Updated proxy list")
	return nil
}

// GetFastestProxy returns the fastest working proxy, refreshing a stale list
func (pm *ProxyManagerImpl) GetFastestProxy(ctx context.Context) (*ProxyInfo, error) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	if time.Since(pm.lastUpdate) > pm.opts.UpdateInterval {
		if err := pm.update(ctx); err != nil {
			pm.log.Warn().Err(err).Msg("Failed to update proxies")
		}
	}
	if len(pm.proxies) == 0 {
		return nil, errors.NewConfiguration("no working proxies available", nil)
	}

	p := pm.proxies[0]
	return &p, nil
}
