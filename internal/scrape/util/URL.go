package util

import (
	"net/url"
	"strings"
)

// CanonicalizeURL makes a posting href absolute against base and drops the
// query string and fragment (refId, trackingId, utm_* ...).
func CanonicalizeURL(raw, base string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if !u.IsAbs() && base != "" {
		b, err := url.Parse(base)
		if err != nil {
			return ""
		}
		u = b.ResolveReference(u)
	}
	if u.Host == "" {
		return ""
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawQuery = ""
	u.RawFragment = ""
	u.ForceQuery = false
	return u.String()
}

// IsPostingURL reports whether a canonical url points at a posting page.
func IsPostingURL(u string) bool {
	return strings.Contains(strings.ToLower(u), "/jobs/view/")
}

// PostingID derives the posting identifier from a url path. The segment in
// front of a trailing "view" wins; otherwise the segment after the last
// "view" (the /jobs/view/<slug> form).
func PostingID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	var segs []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) == 0 {
		return ""
	}

	last := len(segs) - 1
	if strings.EqualFold(segs[last], "view") {
		if last == 0 {
			return ""
		}
		return segs[last-1]
	}
	for i := last - 1; i >= 0; i-- {
		if strings.EqualFold(segs[i], "view") {
			return segs[i+1]
		}
	}
	return ""
}
