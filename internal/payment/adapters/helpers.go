package adapters

import (
	"net/url"
	"strings"
)

// EncodeGET folds redirect form fields into the gateway URL's query string.
func EncodeGET(base string, fields map[string]string) string {
	if len(fields) == 0 {
		return base
	}
	values := url.Values{}
	for key, value := range fields {
		values.Set(key, value)
	}
	separator := "?"
	if strings.Contains(base, "?") {
		separator = "&"
	}
	return base + separator + values.Encode()
}

// IPAllowed reports whether the source IP passes the allow-list. An empty
// list disables the filter.
func IPAllowed(ip string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	ip = strings.TrimSpace(ip)
	for _, candidate := range allowed {
		if strings.TrimSpace(candidate) == ip {
			return true
		}
	}
	return false
}

// Scheme picks the URL scheme for a return address.
func Scheme(forceSSL bool) string {
	if forceSSL {
		return "https"
	}
	return "http"
}
