package search

import (
	"net/url"
	"strings"
)

// trackingParams are dropped from candidate URLs; utm_* is matched by prefix.
var trackingParams = map[string]struct{}{
	"yclid":     {},
	"gclid":     {},
	"fbclid":    {},
	"_openstat": {},
	"etext":     {},
	"ysclid":    {},
}

func isRedirectHost(host string) bool {
	host = strings.ToLower(host)
	return host == "yabs.yandex.ru" || strings.HasPrefix(host, "yabs.yandex.")
}

// CleanURL unwraps ad-redirect links, rejects non-http(s) and skip-listed
// targets, and strips tracking parameters and fragments. The second return
// value is false when the URL is rejected.
func (h *Harvester) CleanURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	if isRedirectHost(u.Hostname()) {
		target := u.Query().Get("url")
		if target == "" {
			return "", false
		}
		if u, err = url.Parse(target); err != nil {
			return "", false
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Hostname() == "" || h.skip.BlocksHost(u.Hostname()) {
		return "", false
	}

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			_, tracked := trackingParams[strings.ToLower(key)]
			if tracked || strings.HasPrefix(strings.ToLower(key), "utm_") {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), true
}
