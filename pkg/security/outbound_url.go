package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// BackendURLOptions configures validation of the chat backend base URL.
type BackendURLOptions struct {
	// AllowHTTP permits plain HTTP URLs. HTTPS is always allowed.
	AllowHTTP bool
	// AllowLocalNetworks permits loopback/private/link-local IP targets and localhost hostnames.
	AllowLocalNetworks bool
}

// DefaultBackendURLOptions is what the CLI uses unless --strict-url is set.
// The RAG backend normally runs next to the client on http://localhost:8000.
func DefaultBackendURLOptions() BackendURLOptions {
	return BackendURLOptions{
		AllowHTTP:          true,
		AllowLocalNetworks: true,
	}
}

// StrictBackendURLOptions only allows https to public hosts.
func StrictBackendURLOptions() BackendURLOptions {
	return BackendURLOptions{}
}

// NormalizeBackendURL validates rawURL and returns it without query, fragment
// or trailing slash, ready to have endpoint paths such as "/chat" appended.
func NormalizeBackendURL(rawURL string, opts BackendURLOptions) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", errors.Wrap(err, "invalid backend URL")
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !opts.AllowHTTP {
			return "", errors.New("http scheme is not allowed")
		}
	default:
		return "", errors.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", errors.New("URL host is required")
	}

	if !opts.AllowLocalNetworks {
		if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
			return "", errors.Errorf("local hostname %q is not allowed", host)
		}
	}

	// IP literals are checked without DNS lookups.
	if addr, err := netip.ParseAddr(host); err == nil {
		if addr.Zone() != "" && !opts.AllowLocalNetworks {
			return "", errors.Errorf("zoned IP address %q is not allowed", host)
		}
		addr = addr.Unmap()

		if addr.IsUnspecified() || addr.IsMulticast() {
			return "", errors.Errorf("disallowed IP address %q", host)
		}

		if !opts.AllowLocalNetworks {
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
				return "", errors.Errorf("local network IP %q is not allowed", host)
			}
		}
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	parsed.RawPath = ""

	return parsed.String(), nil
}
