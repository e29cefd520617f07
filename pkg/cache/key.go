package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// PageKey identifies a cached page.
type PageKey struct {
	// Host is the portal host, lower-cased (e.g. "bj.lianjia.com")
	Host string

	// Path is the request path (e.g. "/ershoufang/haidian/pg2sf1co21")
	Path string

	// Query holds the query parameters (e.g. pagenumber, pagesize)
	Query url.Values
}

// KeyForURL builds the key of a page URL.
func KeyForURL(rawURL string) (PageKey, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return PageKey{}, fmt.Errorf("parse page url: %w", err)
	}
	if u.Host == "" {
		return PageKey{}, fmt.Errorf("page url %q has no host", rawURL)
	}
	return PageKey{
		Host:  strings.ToLower(u.Host),
		Path:  u.Path,
		Query: u.Query(),
	}, nil
}

// String generates a deterministic key string.
// Format: crawl:page:host:path:query1=val1:query2=val2
//
// Example:
//
//	crawl:page:210.75.213.188:shh/portal/bjjs/audit_house_list.aspx:pagenumber=2:pagesize=20
func (k PageKey) String() string {
	parts := []string{"crawl", "page", k.Host}

	path := strings.Trim(k.Path, "/")
	if path != "" {
		parts = append(parts, path)
	}

	// Sorted for determinism
	if len(k.Query) > 0 {
		keys := make([]string, 0, len(k.Query))
		for key := range k.Query {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.Query[key], ",")))
		}
	}

	return strings.Join(parts, ":")
}
