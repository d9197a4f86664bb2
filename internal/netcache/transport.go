package netcache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultOfflineNotice is the message embedded in synthesized list responses.
const DefaultOfflineNotice = "You are offline. Showing the last available data."

const maxCachedBody = 10 << 20

// Config wires a Transport.
type Config struct {
	// Base is the underlying round tripper; http.DefaultTransport when nil.
	Base http.RoundTripper
	// APIBaseURL is the story service, e.g. https://story-api.dicoding.dev/v1.
	// Requests to its host are handled network-first.
	APIBaseURL string
	// ShellBaseURL is the origin the application shell is loaded from.
	// Requests to its host are handled cache-first. Empty disables shell
	// handling.
	ShellBaseURL string
	// Manifest lists the shell asset paths. Requests to the shell host
	// outside the manifest fall back to plain network-then-cache handling.
	Manifest *Manifest
	// OfflineNotice overrides DefaultOfflineNotice.
	OfflineNotice string

	Logger zerolog.Logger
}

// Transport is an http.RoundTripper that classifies each request and serves
// it from cache, network, or a synthesized fallback. Only GET requests are
// ever intercepted; everything else passes through untouched.
type Transport struct {
	base  http.RoundTripper
	cache *Cache
	log   zerolog.Logger

	apiHost    string
	storiesURL string // canonical list endpoint, no query
	shellHost  string
	shellBase  string
	manifest   *Manifest
	offlineMsg string
}

var timeNow = time.Now

// NewTransport builds the caching transport around cache.
func NewTransport(cache *Cache, cfg Config) (*Transport, error) {
	apiURL, err := url.Parse(cfg.APIBaseURL)
	if err != nil || apiURL.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", cfg.APIBaseURL)
	}

	t := &Transport{
		base:       cfg.Base,
		cache:      cache,
		log:        cfg.Logger,
		apiHost:    apiURL.Host,
		storiesURL: strings.TrimSuffix(apiURL.String(), "/") + "/stories",
		manifest:   cfg.Manifest,
		offlineMsg: cfg.OfflineNotice,
	}
	if t.base == nil {
		t.base = http.DefaultTransport
	}
	if t.offlineMsg == "" {
		t.offlineMsg = DefaultOfflineNotice
	}
	if cfg.ShellBaseURL != "" {
		shellURL, err := url.Parse(cfg.ShellBaseURL)
		if err != nil || shellURL.Host == "" {
			return nil, fmt.Errorf("invalid shell base URL %q", cfg.ShellBaseURL)
		}
		t.shellHost = shellURL.Host
		t.shellBase = strings.TrimSuffix(shellURL.String(), "/")
	}
	return t, nil
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.base.RoundTrip(req)
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return t.base.RoundTrip(req)
	}

	switch {
	case req.URL.Host == t.apiHost:
		return t.roundTripAPI(req)
	case t.shellHost != "" && req.URL.Host == t.shellHost:
		if t.manifest != nil && t.manifest.Contains(req.URL.Path) {
			return t.roundTripShell(req)
		}
		return t.roundTripDefault(req)
	default:
		return t.base.RoundTrip(req)
	}
}

// roundTripAPI is network-first: a successful response refreshes the API
// cache; a network failure falls back to the cached response, then to a
// synthesized degraded one.
func (t *Transport) roundTripAPI(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return t.storeAndReturn(APICacheName, apiKey(req), resp)
		}
		return resp, nil
	}

	key := apiKey(req)
	if entry, matchErr := t.cache.Match(APICacheName, key); matchErr == nil && entry != nil {
		cacheHitsTotal.WithLabelValues(APICacheName).Inc()
		t.log.Debug().Str("url", key).Msg("serving API response from cache")
		return entry.Response(req), nil
	}

	if t.isStoriesList(req) {
		offlineFallbacksTotal.WithLabelValues("stories_list").Inc()
		t.log.Info().Str("url", key).Msg("offline, synthesizing story list")
		return t.synthesizeStoryList(req), nil
	}

	offlineFallbacksTotal.WithLabelValues("api_error").Inc()
	return jsonResponse(req, http.StatusServiceUnavailable, map[string]any{
		"error":   "offline",
		"message": "Cannot reach the story service.",
	}), nil
}

// roundTripShell is cache-first: shell assets are immutable within a cache
// version, so a hit never revalidates.
func (t *Transport) roundTripShell(req *http.Request) (*http.Response, error) {
	if entry, err := t.cache.Match(ShellCacheName, req.URL.Path); err == nil && entry != nil {
		cacheHitsTotal.WithLabelValues(ShellCacheName).Inc()
		return entry.Response(req), nil
	}

	resp, err := t.base.RoundTrip(req)
	if err == nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return t.storeAndReturn(ShellCacheName, req.URL.Path, resp)
		}
		return resp, nil
	}

	if isNavigation(req) {
		if entry, matchErr := t.cache.Match(ShellCacheName, "/"); matchErr == nil && entry != nil {
			cacheHitsTotal.WithLabelValues(ShellCacheName).Inc()
			offlineFallbacksTotal.WithLabelValues("navigation").Inc()
			return entry.Response(req), nil
		}
	}
	offlineFallbacksTotal.WithLabelValues("asset_error").Inc()
	return textResponse(req, http.StatusRequestTimeout, "Network error"), nil
}

// roundTripDefault covers shell-origin requests outside the manifest:
// network first, then any cached copy, then a plain offline response.
func (t *Transport) roundTripDefault(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	if entry, matchErr := t.cache.Match(ShellCacheName, req.URL.Path); matchErr == nil && entry != nil {
		cacheHitsTotal.WithLabelValues(ShellCacheName).Inc()
		return entry.Response(req), nil
	}
	offlineFallbacksTotal.WithLabelValues("default").Inc()
	return textResponse(req, http.StatusServiceUnavailable, "Offline"), nil
}

// storeAndReturn drains resp, writes it to the named cache best-effort, and
// hands the caller an equivalent response. A failed write is logged and
// counted, never propagated, and a body too large to cache passes through
// whole; caching never alters what the caller receives.
func (t *Transport) storeAndReturn(cacheName, key string, resp *http.Response) (*http.Response, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCachedBody+1))
	if err != nil {
		// Could not capture the body; hand back what we have uncached.
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(body))
		resp.ContentLength = int64(len(body))
		return resp, nil
	}
	if len(body) > maxCachedBody {
		cacheWriteFailuresTotal.WithLabelValues(cacheName).Inc()
		t.log.Debug().Str("cache", cacheName).Str("key", key).Msg("response too large to cache")
		resp.Body = &prefixedBody{
			Reader: io.MultiReader(bytes.NewReader(body), resp.Body),
			closer: resp.Body,
		}
		return resp, nil
	}
	resp.Body.Close()

	entry := &Entry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: timeNow(),
	}
	if putErr := t.cache.Put(cacheName, key, entry); putErr != nil {
		cacheWriteFailuresTotal.WithLabelValues(cacheName).Inc()
		t.log.Warn().Err(putErr).Str("cache", cacheName).Str("key", key).Msg("cache write failed")
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}

// prefixedBody stitches already-read bytes back in front of the rest of a
// stream while keeping the original closer.
type prefixedBody struct {
	io.Reader
	closer io.Closer
}

func (b *prefixedBody) Close() error { return b.closer.Close() }

func (t *Transport) isStoriesList(req *http.Request) bool {
	u := *req.URL
	u.RawQuery = ""
	u.Fragment = ""
	return u.String() == t.storiesURL
}

// synthesizeStoryList builds the degraded story-list response: HTTP 200 with
// the best-effort cached list, so consumers written against the success
// shape need no offline special case.
func (t *Transport) synthesizeStoryList(req *http.Request) *http.Response {
	list := json.RawMessage(`[]`)
	if entry := t.lastCachedList(); entry != nil {
		var cached struct {
			ListStory json.RawMessage `json:"listStory"`
		}
		if err := json.Unmarshal(entry.Body, &cached); err == nil && len(cached.ListStory) > 0 {
			list = cached.ListStory
		}
	}
	return jsonResponse(req, http.StatusOK, map[string]any{
		"error":     "offline",
		"message":   t.offlineMsg,
		"listStory": list,
	})
}

// lastCachedList finds the freshest cached list response: the bare list
// endpoint, or failing that the newest query variant (cache keys carry the
// query string, so ?page=2 and friends live under their own keys). The
// prefix is query-delimited to keep /stories/{id} detail entries out.
func (t *Transport) lastCachedList() *Entry {
	if entry, err := t.cache.Match(APICacheName, t.storiesURL); err == nil && entry != nil {
		return entry
	}
	entry, err := t.cache.MatchPrefix(APICacheName, t.storiesURL+"?")
	if err != nil {
		return nil
	}
	return entry
}

func apiKey(req *http.Request) string {
	return req.URL.String()
}

func isNavigation(req *http.Request) bool {
	if req.URL.Path == "/" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

func jsonResponse(req *http.Request, status int, v any) *http.Response {
	body, _ := json.Marshal(v)
	entry := &Entry{
		Status: status,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   body,
	}
	return entry.Response(req)
}

func textResponse(req *http.Request, status int, msg string) *http.Response {
	entry := &Entry{
		Status: status,
		Header: http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:   []byte(msg),
	}
	return entry.Response(req)
}
