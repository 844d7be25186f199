// Package gateway is the same-origin proxy in front of the backend. It maps
// /api/* onto the backend's /v1/* and verifies bearer tokens before
// forwarding. Only the Authorization header carries credentials; cookies are
// dropped at the edge.
package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"ecoquote/internal/api"
	"ecoquote/internal/auth"
	"ecoquote/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Gateway struct {
	upstream *url.URL
	jwt      *auth.JWTConfig
	proxy    *httputil.ReverseProxy
	log      *zap.Logger
}

func New(upstreamURL string, jwt *auth.JWTConfig, log *zap.Logger) (*Gateway, error) {
	upstream, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q", upstreamURL)
	}

	g := &Gateway{upstream: upstream, jwt: jwt, log: log}
	g.proxy = &httputil.ReverseProxy{
		Rewrite:        g.rewrite,
		ModifyResponse: g.modifyResponse,
		ErrorHandler:   g.errorHandler,
	}
	return g, nil
}

// Handler returns the gateway router
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(api.RequestLogger(g.log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(g.jwt.Middleware)
		r.Handle("/api", g.proxy)
		r.Handle("/api/*", g.proxy)
	})
	return r
}

// UpstreamPath maps a gateway path onto the backend API
func UpstreamPath(path string) string {
	rest := strings.TrimPrefix(path, "/api")
	if rest != "" && !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	return "/v1" + rest
}

func (g *Gateway) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(g.upstream)
	pr.Out.URL.Path = strings.TrimRight(g.upstream.Path, "/") + UpstreamPath(pr.In.URL.Path)
	pr.Out.URL.RawPath = ""
	pr.SetXForwarded()
	if id := middleware.GetReqID(pr.In.Context()); id != "" {
		pr.Out.Header.Set(middleware.RequestIDHeader, id)
	}
	// Cookies stay at the edge
	pr.Out.Header.Del("Cookie")
}

func (g *Gateway) modifyResponse(resp *http.Response) error {
	metrics.ProxyRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	return nil
}

func (g *Gateway) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	metrics.ProxyRequestsTotal.WithLabelValues(strconv.Itoa(http.StatusBadGateway)).Inc()
	g.log.Error("Upstream request failed",
		zap.String("path", r.URL.Path),
		zap.String("upstream", g.upstream.String()),
		zap.Error(err),
	)
	api.WriteError(w, http.StatusBadGateway, "upstream_unavailable", "Backend unavailable", g.log)
}
