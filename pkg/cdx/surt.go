package cdx

import (
	"net/url"
	"strings"
)

// SURT converts a host and path to Sort-friendly URI Reordering Transform
// form, the key order used by cc-index files: host labels reversed and comma
// joined, then ")/" and the path. "sub.example.com", "/a" becomes
// "com,example,sub)/a".
func SURT(host, path string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	labels := strings.Split(host, ".")
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}

	if path == "" {
		path = "/"
	}
	return strings.Join(labels, ",") + ")" + strings.ToLower(path)
}

// SURTPrefixes returns the index key prefixes that cover a host. With
// subdomains included this is the host key itself plus the comma prefix that
// all subdomain keys sort under.
func SURTPrefixes(host string, subdomains bool) []string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	labels := strings.Split(host, ".")
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
	key := strings.Join(labels, ",")

	if !subdomains {
		return []string{key + ")"}
	}
	return []string{key + ")", key + ","}
}

// HostOf parses the host out of a capture URL. Scheme-less URLs are handled
// the way CDX records write them.
func HostOf(rawURL string) string {
	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
