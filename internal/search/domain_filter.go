package search

import (
	"net/url"
	"sort"
	"strings"

	"github.com/smriti-ai/smriti/internal/models"
)

// DomainFilter is a parsed include/exclude domain list. Entries prefixed with
// "-" are exclusions; unprefixed entries form an allow-list. When the
// allow-list is non-empty only hosts on it pass, then the exclude list removes
// any overlap.
type DomainFilter struct {
	Include []string
	Exclude []string
}

// ParseDomainFilter parses a comma-separated filter string such as
// "a.com,b.com,-c.com". Blank entries are ignored; hosts are lowercased.
func ParseDomainFilter(filter string) DomainFilter {
	var df DomainFilter
	for _, part := range strings.Split(filter, ",") {
		domain := strings.TrimSpace(part)
		if domain == "" {
			continue
		}
		if strings.HasPrefix(domain, "-") {
			domain = strings.TrimSpace(strings.TrimPrefix(domain, "-"))
			if domain != "" {
				df.Exclude = append(df.Exclude, strings.ToLower(domain))
			}
			continue
		}
		df.Include = append(df.Include, strings.ToLower(domain))
	}
	return df
}

// IsEmpty reports whether the filter has no entries.
func (df DomainFilter) IsEmpty() bool {
	return len(df.Include) == 0 && len(df.Exclude) == 0
}

// Matches reports whether the host of rawURL passes the filter. A malformed
// URL yields an empty host, which matches nothing: it fails a non-empty
// allow-list but is not caught by an exclude-list.
func (df DomainFilter) Matches(rawURL string) bool {
	host := ExtractDomain(rawURL)
	if len(df.Include) > 0 && !containsString(df.Include, host) {
		return false
	}
	if containsString(df.Exclude, host) {
		return false
	}
	return true
}

// FilterPages returns the pages whose URL host passes the filter, preserving
// input order.
func (df DomainFilter) FilterPages(pages []*models.Page) []*models.Page {
	if df.IsEmpty() {
		return pages
	}
	out := make([]*models.Page, 0, len(pages))
	for _, p := range pages {
		if df.Matches(p.URL) {
			out = append(out, p)
		}
	}
	return out
}

// ExtractDomain returns the lowercase host component of rawURL, or "" when
// the URL cannot be parsed or has no host.
func ExtractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// UniqueDomains returns the sorted distinct hosts across pages, skipping
// pages whose URL has no parseable host.
func UniqueDomains(pages []*models.Page) []string {
	seen := make(map[string]bool)
	for _, p := range pages {
		if host := ExtractDomain(p.URL); host != "" {
			seen[host] = true
		}
	}
	out := make([]string, 0, len(seen))
	for host := range seen {
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
