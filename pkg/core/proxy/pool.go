// Package proxy holds the proxy and user agent lists used to rotate requests.
package proxy

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"stock_fundamentals/pkg/core/config"
)

// DefaultUserAgent is sent when no user agent list is configured.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0"

// Pool hands out a random proxy and user agent per request. Safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	rnd     *rand.Rand
	proxies []string
	agents  []string
}

// NewPool creates a pool over the given lists. Proxies are deduplicated by host.
func NewPool(proxies, agents []string, rnd *rand.Rand) *Pool {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Pool{
		rnd:     rnd,
		proxies: Dedupe(proxies),
		agents:  agents,
	}
}

// Load reads the proxy and user agent files named in cfg. A missing proxy
// file yields a pool that fetches directly.
func Load(cfg config.ProxyConfig) (*Pool, error) {
	proxies, err := LoadLines(cfg.ProxiesFile)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	agents, err := LoadLines(cfg.UserAgentsFile)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return NewPool(proxies, agents, nil), nil
}

// LoadLines returns the non-empty trimmed lines of path.
func LoadLines(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

// Dedupe keeps the first proxy seen for each host.
func Dedupe(proxies []string) []string {
	seen := make(map[string]bool, len(proxies))
	out := make([]string, 0, len(proxies))
	for _, p := range proxies {
		host, _, _ := strings.Cut(p, ":")
		if seen[host] {
			continue
		}
		seen[host] = true
		out = append(out, p)
	}
	return out
}

// Proxy returns a random "host:port", or false when the pool has none.
func (p *Pool) Proxy() (string, bool) {
	if len(p.proxies) == 0 {
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.proxies[p.rnd.Intn(len(p.proxies))], true
}

// UserAgent returns a random user agent, or DefaultUserAgent.
func (p *Pool) UserAgent() string {
	if len(p.agents) == 0 {
		return DefaultUserAgent
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agents[p.rnd.Intn(len(p.agents))]
}

// Len returns the number of distinct proxies.
func (p *Pool) Len() int {
	return len(p.proxies)
}
