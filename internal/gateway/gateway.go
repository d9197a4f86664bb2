// Package gateway runs the local HTTP front of the client: it exposes the
// caching transport over HTTP so the app shell and the story API stay
// reachable with zero network, and hosts the sync status surface.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/storyhive/storyhive/internal/api"
	"github.com/storyhive/storyhive/internal/syncer"
)

// Config wires a Gateway.
type Config struct {
	// Addr is the listen address, e.g. 127.0.0.1:8730.
	Addr string
	// APIBaseURL is the story service; /v1/* requests are proxied there.
	APIBaseURL string
	// ShellBaseURL is the upstream origin of the app shell; every other GET
	// is proxied there. Empty disables shell proxying.
	ShellBaseURL string
}

// Gateway proxies requests through the caching transport.
type Gateway struct {
	echo        *echo.Echo
	client      *http.Client
	coordinator *syncer.Coordinator
	log         zerolog.Logger

	addr      string
	apiBase   *url.URL
	shellBase *url.URL
}

// New builds the gateway. transport must be the netcache round tripper so
// proxied requests pick up offline behavior; coordinator may be nil when
// only asset serving is wanted.
func New(cfg Config, transport http.RoundTripper, coordinator *syncer.Coordinator, log zerolog.Logger) (*Gateway, error) {
	apiBase, err := url.Parse(cfg.APIBaseURL)
	if err != nil {
		return nil, err
	}
	var shellBase *url.URL
	if cfg.ShellBaseURL != "" {
		shellBase, err = url.Parse(cfg.ShellBaseURL)
		if err != nil {
			return nil, err
		}
	}

	g := &Gateway{
		client:      &http.Client{Transport: transport, Timeout: 60 * time.Second},
		coordinator: coordinator,
		log:         log,
		addr:        cfg.Addr,
		apiBase:     apiBase,
		shellBase:   shellBase,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/sync/status", g.handleSyncStatus)
	e.POST("/v1/stories", g.handleCreateStory)
	e.Any("/v1/*", g.handleAPIProxy)
	if g.shellBase != nil {
		e.GET("/*", g.handleShellProxy)
	}

	g.echo = e
	return g, nil
}

// Start listens until ctx is cancelled.
func (g *Gateway) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.echo.Start(g.addr)
	}()
	g.log.Info().Str("addr", g.addr).Msg("gateway listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return g.echo.Shutdown(shutdownCtx)
	}
}

func (g *Gateway) handleSyncStatus(c echo.Context) error {
	if g.coordinator == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": true, "message": "sync not enabled"})
	}
	status, err := g.coordinator.GetSyncStatus()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": true, "message": err.Error()})
	}
	return c.JSON(http.StatusOK, status)
}

// handleCreateStory routes story submission through the sync coordinator,
// so a submission with no network is durably queued instead of failing at
// the proxy hop. Without a coordinator it degrades to a plain proxy.
func (g *Gateway) handleCreateStory(c echo.Context) error {
	if g.coordinator == nil {
		return g.handleAPIProxy(c)
	}

	draft, err := draftFromForm(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": true, "message": err.Error()})
	}
	token := bearerToken(c.Request().Header.Get("Authorization"))

	result, err := g.coordinator.CreateStory(c.Request().Context(), draft, token)
	if err != nil {
		g.log.Warn().Err(err).Msg("story submission rejected")
		return c.JSON(http.StatusBadGateway, echo.Map{"error": true, "message": err.Error()})
	}
	if result.Deferred {
		return c.JSON(http.StatusCreated, echo.Map{
			"error":   false,
			"message": "Story saved. It will be uploaded when you are back online.",
			"id":      result.Pending.ID,
		})
	}
	return c.JSON(http.StatusCreated, echo.Map{"error": false, "message": result.Message})
}

func draftFromForm(c echo.Context) (api.StoryDraft, error) {
	draft := api.StoryDraft{Description: c.FormValue("description")}
	if draft.Description == "" {
		return draft, errors.New("description is required")
	}

	if header, err := c.FormFile("photo"); err == nil {
		file, err := header.Open()
		if err != nil {
			return draft, fmt.Errorf("reading photo: %w", err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return draft, fmt.Errorf("reading photo: %w", err)
		}
		draft.Photo = data
		draft.PhotoName = header.Filename
	}

	for _, coord := range []struct {
		field string
		dst   **float64
	}{
		{"lat", &draft.Lat},
		{"lon", &draft.Lon},
	} {
		raw := c.FormValue(coord.field)
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return draft, fmt.Errorf("invalid %s %q", coord.field, raw)
		}
		*coord.dst = &value
	}
	return draft, nil
}

func bearerToken(header string) string {
	return strings.TrimPrefix(header, "Bearer ")
}

// handleAPIProxy forwards /v1/* to the story service through the caching
// transport, so GETs are served from cache when offline and POSTs surface
// their network errors to the caller.
func (g *Gateway) handleAPIProxy(c echo.Context) error {
	target := *g.apiBase
	target.Path = c.Request().URL.Path
	target.RawQuery = c.Request().URL.RawQuery
	return g.proxy(c, target.String())
}

// handleShellProxy forwards everything else to the shell origin; manifest
// assets come back cache-first.
func (g *Gateway) handleShellProxy(c echo.Context) error {
	target := *g.shellBase
	target.Path = c.Request().URL.Path
	target.RawQuery = c.Request().URL.RawQuery
	return g.proxy(c, target.String())
}

func (g *Gateway) proxy(c echo.Context, target string) error {
	req, err := http.NewRequestWithContext(c.Request().Context(), c.Request().Method, target, c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	copyProxyHeaders(req.Header, c.Request().Header)

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Warn().Err(err).Str("target", target).Msg("proxy request failed")
		return echo.NewHTTPError(http.StatusBadGateway, "upstream unreachable")
	}
	defer resp.Body.Close()

	for k, v := range resp.Header {
		c.Response().Header()[k] = v
	}
	c.Response().WriteHeader(resp.StatusCode)
	_, err = io.Copy(c.Response(), resp.Body)
	return err
}

// copyProxyHeaders carries the headers that matter across the proxy hop.
func copyProxyHeaders(dst, src http.Header) {
	for _, name := range []string{"Authorization", "Accept", "Content-Type", "User-Agent"} {
		if v := src.Get(name); v != "" {
			dst.Set(name, v)
		}
	}
}

// NewReplayRegistrar returns a BackgroundRegistrar that schedules a replay
// pass in a background goroutine, the degraded-platform analog of deferred
// background execution. delay leaves room for a transient blip to settle
// before the attempt; zero means the 2s default.
func NewReplayRegistrar(ctx context.Context, log zerolog.Logger, delay time.Duration, replay func(context.Context) error) syncer.BackgroundRegistrar {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &goroutineRegistrar{ctx: ctx, log: log, delay: delay, replay: replay}
}

type goroutineRegistrar struct {
	ctx    context.Context
	log    zerolog.Logger
	delay  time.Duration
	replay func(context.Context) error
}

func (r *goroutineRegistrar) RegisterReplay(tag string) error {
	go func() {
		select {
		case <-r.ctx.Done():
			return
		case <-time.After(r.delay):
		}
		if err := r.replay(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Warn().Err(err).Str("tag", tag).Msg("background replay failed")
		}
	}()
	return nil
}
