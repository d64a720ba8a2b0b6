/*
Copyright 2025 The GitHub Webhook Server Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

const (
	cloudflareIPv4URL = "https://www.cloudflare.com/ips-v4"
	cloudflareIPv6URL = "https://www.cloudflare.com/ips-v6"
)

// IPGate admits webhook requests only from published GitHub hook ranges and,
// when a proxy fronts the server, Cloudflare edge ranges. Ranges are fetched
// once at startup; a nil gate admits everything.
type IPGate struct {
	logger  *logrus.Entry
	allowed []netip.Prefix
}

// IPGateOptions selects which published ranges to trust. APIBase is the
// GitHub REST endpoint whose /meta document lists the hook ranges.
type IPGateOptions struct {
	GitHub     bool
	Cloudflare bool
	APIBase    string
}

// NewIPGate fetches the selected ranges and returns the gate. With both
// sources disabled it returns nil, which admits everything. Enabling a
// source that cannot be fetched is a startup error, not an open gate.
func NewIPGate(ctx context.Context, logger *logrus.Entry, opts IPGateOptions) (*IPGate, error) {
	if !opts.GitHub && !opts.Cloudflare {
		return nil, nil
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 4
	client.Logger = nil

	var allowed []netip.Prefix
	if opts.GitHub {
		ranges, err := fetchGitHubHookRanges(ctx, client, opts.APIBase)
		if err != nil {
			return nil, fmt.Errorf("could not fetch GitHub hook ranges: %w", err)
		}
		allowed = append(allowed, ranges...)
	}
	if opts.Cloudflare {
		for _, url := range []string{cloudflareIPv4URL, cloudflareIPv6URL} {
			ranges, err := fetchPlainRanges(ctx, client, url)
			if err != nil {
				return nil, fmt.Errorf("could not fetch Cloudflare ranges: %w", err)
			}
			allowed = append(allowed, ranges...)
		}
	}
	if len(allowed) == 0 {
		return nil, fmt.Errorf("source IP verification enabled but no ranges were published")
	}
	logger.Infof("Webhook source filtering enabled with %d allowed ranges.", len(allowed))
	return &IPGate{logger: logger, allowed: allowed}, nil
}

// Allows reports whether the request source is inside an allowed range. The
// first X-Forwarded-For hop wins over the socket address so the gate works
// behind a reverse proxy.
func (g *IPGate) Allows(remoteAddr, forwardedFor string) bool {
	if g == nil {
		return true
	}
	source := clientIP(remoteAddr, forwardedFor)
	addr, err := netip.ParseAddr(source)
	if err != nil {
		g.logger.Debugf("Rejecting unparseable source address %q.", source)
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range g.allowed {
		if prefix.Contains(addr) {
			return true
		}
	}
	g.logger.Debugf("Source %s is outside every allowed range.", addr)
	return false
}

func clientIP(remoteAddr, forwardedFor string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func fetchGitHubHookRanges(ctx context.Context, client *retryablehttp.Client, apiBase string) ([]netip.Prefix, error) {
	body, err := fetchBody(ctx, client, strings.TrimSuffix(apiBase, "/")+"/meta")
	if err != nil {
		return nil, err
	}
	var meta struct {
		Hooks []string `json:"hooks"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("could not decode meta document: %w", err)
	}
	return parsePrefixes(meta.Hooks)
}

func fetchPlainRanges(ctx context.Context, client *retryablehttp.Client, url string) ([]netip.Prefix, error) {
	body, err := fetchBody(ctx, client, url)
	if err != nil {
		return nil, err
	}
	return parsePrefixes(strings.Fields(string(body)))
}

func fetchBody(ctx context.Context, client *retryablehttp.Client, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// parsePrefixes accepts CIDR entries and bare addresses; the published lists
// mix both.
func parsePrefixes(entries []string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("bad range %q: %w", entry, err)
			}
			prefixes = append(prefixes, prefix)
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("bad address %q: %w", entry, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}
