// Package skiplist holds the process-wide set of domains excluded from
// harvesting and extraction.
package skiplist

import (
	"net/url"
	"strings"
	"sync/atomic"
)

// Defaults are the domains excluded when no configuration overrides them.
var Defaults = []string{
	"avito.ru",
	"uslugi.yandex.ru",
	"yandex.ru",
	"yandex.com",
	"google.com",
	"facebook.com",
	"vk.com",
	"instagram.com",
}

type snapshot struct {
	domains map[string]struct{}
}

// List matches hosts against a domain set. A domain blocks itself and every
// subdomain. Reads are lock-free; Replace swaps in a new immutable snapshot.
type List struct {
	current atomic.Pointer[snapshot]
}

// New builds a List from domains.
func New(domains []string) *List {
	l := &List{}
	l.Replace(domains)
	return l
}

// Replace atomically swaps the domain set.
func (l *List) Replace(domains []string) {
	next := &snapshot{domains: make(map[string]struct{}, len(domains))}
	for _, raw := range domains {
		value := strings.TrimSpace(strings.ToLower(raw))
		value = strings.TrimPrefix(value, "*.")
		value = strings.Trim(value, ".")
		if value == "" {
			continue
		}
		next.domains[value] = struct{}{}
	}
	l.current.Store(next)
}

// Domains returns the current domain set.
func (l *List) Domains() []string {
	snap := l.current.Load()
	out := make([]string, 0, len(snap.domains))
	for d := range snap.domains {
		out = append(out, d)
	}
	return out
}

// BlocksHost reports whether host equals or is a subdomain of a listed domain.
func (l *List) BlocksHost(host string) bool {
	if l == nil {
		return false
	}
	host = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(host)), ".")
	if host == "" {
		return false
	}
	snap := l.current.Load()
	for {
		if _, ok := snap.domains[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
	}
}

// Contains reports whether rawURL's host is blocked. Unparseable URLs are not.
func (l *List) Contains(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	return l.BlocksHost(u.Hostname())
}
