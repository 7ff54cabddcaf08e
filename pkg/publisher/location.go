package publisher

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("invalid url")

// Location is a URL split into the components visible to rule expressions.
type Location struct {
	URL      string
	Protocol string // "https:"
	Host     string // hostname[:port]
	Hostname string
	Port     string
	Pathname string
	Search   string // "?a=b" or ""
	Hash     string // "#x" or ""

	TLD string // public suffix, e.g. "co.uk"
	SLD string // registrable domain, e.g. "example.co.uk"; empty for IPs
	RLD string // labels left of SLD, e.g. "www.static"
	QLD string // right-most label of RLD, e.g. "static"
}

// ParseLocation parses an absolute http or https URL.
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Location{}, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Location{}, fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	hostname := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if hostname == "" {
		return Location{}, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	loc := Location{
		URL:      u.String(),
		Protocol: scheme + ":",
		Host:     strings.ToLower(u.Host),
		Hostname: hostname,
		Port:     u.Port(),
		Pathname: u.EscapedPath(),
	}
	if loc.Pathname == "" {
		loc.Pathname = "/"
	}
	if u.RawQuery != "" {
		loc.Search = "?" + u.RawQuery
	}
	if u.Fragment != "" {
		loc.Hash = "#" + u.EscapedFragment()
	}

	if net.ParseIP(hostname) != nil {
		return loc, nil
	}
	loc.TLD, _ = publicsuffix.PublicSuffix(hostname)
	if sld, err := publicsuffix.EffectiveTLDPlusOne(hostname); err == nil {
		loc.SLD = sld
	}
	if loc.SLD != "" && hostname != loc.SLD {
		loc.RLD = strings.TrimSuffix(hostname, "."+loc.SLD)
		loc.QLD = loc.RLD[strings.LastIndex(loc.RLD, ".")+1:]
	}
	return loc, nil
}

func (l Location) activation() map[string]any {
	return map[string]any{
		"url":      l.URL,
		"protocol": l.Protocol,
		"host":     l.Host,
		"hostname": l.Hostname,
		"port":     l.Port,
		"pathname": l.Pathname,
		"search":   l.Search,
		"hash":     l.Hash,
		"TLD":      l.TLD,
		"SLD":      l.SLD,
		"RLD":      l.RLD,
		"QLD":      l.QLD,
	}
}

var variableNames = []string{
	"url", "protocol", "host", "hostname", "port", "pathname", "search", "hash",
	"TLD", "SLD", "RLD", "QLD",
}
