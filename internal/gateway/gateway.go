// Package gateway is the single outgoing-request pipeline: it resolves the
// acting role, attaches bearer tokens, and classifies responses, handing
// unauthorized ones to the refresh coordinator instead of surfacing them.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/adoption-client/internal/api"
	"github.com/spec-kit/adoption-client/internal/domain"
	"github.com/spec-kit/adoption-client/internal/observability"
	"github.com/spec-kit/adoption-client/internal/refresh"
	"github.com/spec-kit/adoption-client/internal/session"
	"github.com/spec-kit/adoption-client/pkg/util"
)

// successCode is the application code marking a successful envelope.
const successCode = "200"

// defaultAllowList holds endpoints that never carry a bearer token and whose
// unauthorized responses never trigger a refresh.
var defaultAllowList = []string{
	"/user/login",
	"/user/register",
	"/user/refresh-token",
	"/admin/login",
}

// Request describes one outgoing call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	// Role explicitly overrides role resolution for this call; empty defers
	// to the resolver.
	Role domain.Role
}

// Response is a successfully classified backend envelope.
type Response struct {
	Status  int
	Code    string
	Message string
	Data    json.RawMessage
}

// Decode unmarshals the data section into out.
func (r *Response) Decode(out any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, out)
}

// Gateway sends requests through the session-aware pipeline.
type Gateway struct {
	baseURL   string
	http      *http.Client
	sessions  *session.Manager
	resolver  *session.Resolver
	coord     *refresh.Coordinator
	notifier  Notifier
	nav       refresh.Navigator
	metrics   *observability.Metrics
	logger    *zap.Logger
	allowList []string
}

// Options bundles Gateway dependencies.
type Options struct {
	BaseURL   string
	HTTP      *http.Client
	Sessions  *session.Manager
	Resolver  *session.Resolver
	Coord     *refresh.Coordinator
	Notifier  Notifier
	Navigator refresh.Navigator
	Metrics   *observability.Metrics
	Logger    *zap.Logger
	AllowList []string
}

// New builds a gateway.
func New(opts Options) *Gateway {
	g := &Gateway{
		baseURL:   strings.TrimSuffix(opts.BaseURL, "/"),
		http:      opts.HTTP,
		sessions:  opts.Sessions,
		resolver:  opts.Resolver,
		coord:     opts.Coord,
		notifier:  opts.Notifier,
		nav:       opts.Navigator,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		allowList: opts.AllowList,
	}
	if g.http == nil {
		g.http = &http.Client{Timeout: 30 * time.Second}
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if g.allowList == nil {
		g.allowList = defaultAllowList
	}
	return g
}

// Do runs one request through the pipeline. An unauthorized response on a
// protected endpoint is handed to the refresh coordinator and the request is
// replayed with the new token rather than surfacing the error.
func (g *Gateway) Do(ctx context.Context, req Request) (*Response, error) {
	role := g.resolver.Resolve(session.RequestContext{Role: req.Role, Path: req.Path})
	public := g.isPublic(req.Path)

	resp, err := g.attempt(ctx, req, role, public, g.sessions.Token(role), true)
	if !isUnauthorizedSignal(err) {
		return resp, err
	}

	result, err := g.coord.Execute(ctx, role, func(token string) (any, error) {
		g.metrics.RecordReplay()
		return g.attempt(ctx, req, role, public, token, false)
	})
	if err != nil {
		return nil, err
	}
	replayed, ok := result.(*Response)
	if !ok {
		return nil, fmt.Errorf("unexpected replay result %T", result)
	}
	return replayed, nil
}

// unauthorizedSignal is the internal marker that a protected request needs
// a token refresh before retrying.
type unauthorizedSignal struct{}

func (unauthorizedSignal) Error() string { return "unauthorized, refresh required" }

func isUnauthorizedSignal(err error) bool {
	_, ok := err.(unauthorizedSignal)
	return ok
}

func (g *Gateway) attempt(ctx context.Context, req Request, role domain.Role, public bool, token string, allowRefresh bool) (*Response, error) {
	httpReq, err := g.build(ctx, req, role, public, token)
	if err != nil {
		return nil, err
	}

	httpResp, err := g.http.Do(httpReq)
	if err != nil {
		return nil, util.NewTransportError(0, "network error", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, util.NewTransportError(httpResp.StatusCode, "reading response failed", err)
	}
	g.metrics.RecordRequest(req.Path, httpReq.Method, httpResp.StatusCode)

	return g.classify(req, role, public, allowRefresh, httpResp, raw)
}

func (g *Gateway) build(ctx context.Context, req Request, role domain.Role, public bool, token string) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	target := g.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if !public && token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
		httpReq.Header.Set(api.RoleHeader, string(role))
	}
	return httpReq, nil
}

func (g *Gateway) classify(req Request, role domain.Role, public, allowRefresh bool, httpResp *http.Response, raw []byte) (*Response, error) {
	// An HTML document where JSON was expected means a proxy or backend is
	// misconfigured, not a business failure.
	if looksLikeHTML(httpResp.Header.Get("Content-Type"), raw) {
		g.notify("service misconfigured: HTML returned where JSON was expected")
		return nil, util.NewConfigurationError("HTML response for " + req.Path)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	unauthorized := httpResp.StatusCode == http.StatusUnauthorized ||
		(decodeErr == nil && isUnauthorizedCode(env.Code.String()))
	if unauthorized && !public {
		if allowRefresh {
			return nil, unauthorizedSignal{}
		}
		// Replay already ran with a fresh token; surface instead of looping.
		return nil, util.NewTransportError(http.StatusUnauthorized, util.TransportMessage(http.StatusUnauthorized), nil)
	}

	if httpResp.StatusCode == http.StatusForbidden {
		message := util.TransportMessage(http.StatusForbidden)
		g.redirectForbidden(req.Path, env.Message)
		g.notify(message)
		return nil, util.NewTransportError(http.StatusForbidden, message, nil)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		message := util.TransportMessage(httpResp.StatusCode)
		g.notify(message)
		return nil, util.NewTransportError(httpResp.StatusCode, message, nil)
	}
	if decodeErr != nil {
		return nil, util.NewTransportError(httpResp.StatusCode, "malformed response body", decodeErr)
	}

	if env.Code.String() != successCode {
		message := env.Message
		if message == "" {
			message = "request rejected by server"
		}
		g.notify(message)
		return nil, util.NewBusinessError(env.Code.String(), message)
	}

	return &Response{
		Status:  httpResp.StatusCode,
		Code:    env.Code.String(),
		Message: env.Message,
		Data:    env.Data,
	}, nil
}

type envelope struct {
	Code    json.Number     `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (g *Gateway) isPublic(path string) bool {
	for _, prefix := range g.allowList {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func (g *Gateway) notify(message string) {
	if g.notifier != nil {
		g.notifier.Notify(message)
	}
}

func (g *Gateway) redirectForbidden(path, reason string) {
	if g.nav == nil {
		return
	}
	q := url.Values{}
	q.Set("path", path)
	if reason != "" {
		q.Set("reason", reason)
	}
	target := "/forbidden?" + q.Encode()
	g.metrics.RecordRedirect("/forbidden")
	g.nav.Redirect(target)
}

// isUnauthorizedCode matches the application code against "401". Prefix
// matching is kept for compatibility with backends that extend the code with
// sub-reasons such as 40101 (token expired).
func isUnauthorizedCode(code string) bool {
	return strings.HasPrefix(code, "401")
}

// looksLikeHTML detects an HTML document payload.
func looksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	trimmed := strings.TrimSpace(string(body))
	lower := strings.ToLower(trimmed)
	return strings.HasPrefix(lower, "<!doctype html") || strings.HasPrefix(lower, "<html")
}
