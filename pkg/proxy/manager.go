package proxy

import (
	"math/rand"
	"net/http"
	"net/url"
	"sync"
)

var desktopUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 YaBrowser/25.12.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36",
}

// Manager handles the rotation of outbound proxies and user agents.
type Manager struct {
	proxies    []*url.URL
	userAgents []string

	mu         sync.Mutex
	proxyIndex int
	rnd        *rand.Rand
}

// NewManager builds a manager from raw proxy URLs. Unparseable entries are skipped.
func NewManager(rawProxies []string) *Manager {
	m := &Manager{
		userAgents: desktopUserAgents,
		rnd:        rand.New(rand.NewSource(rand.Int63())),
	}
	for _, raw := range rawProxies {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		m.proxies = append(m.proxies, u)
	}
	return m
}

// Proxy returns the next proxy, rotating sequentially, or nil when none are configured.
// Its signature matches http.Transport.Proxy.
func (m *Manager) Proxy(*http.Request) (*url.URL, error) {
	if len(m.proxies) == 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.proxies[m.proxyIndex]
	m.proxyIndex = (m.proxyIndex + 1) % len(m.proxies)
	return p, nil
}

// UserAgent returns a random desktop user agent string.
func (m *Manager) UserAgent() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userAgents[m.rnd.Intn(len(m.userAgents))]
}

// Transport returns an http.Transport cloned from the default one that routes
// through the rotating proxies.
func (m *Manager) Transport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = m.Proxy
	return t
}
