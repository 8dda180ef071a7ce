// Package mcptools exposes link building, link parsing and offline
// resolution as MCP tools, plus live session tools when a session manager
// is present.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/commentlink/fingerprint"
	"github.com/hazyhaar/commentlink/inspect"
	"github.com/hazyhaar/commentlink/kit"
	"github.com/hazyhaar/commentlink/platform"
	"github.com/hazyhaar/commentlink/session"
	"github.com/hazyhaar/commentlink/sharelink"
)

// Service holds what the tools run against. Sessions may be nil.
type Service struct {
	inspector *inspect.Inspector
	sessions  *session.Manager
	logger    *slog.Logger
}

// New creates a Service.
func New(sessions *session.Manager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{inspector: inspect.New(logger), sessions: sessions, logger: logger}
}

// RegisterMCP registers every tool on srv.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerShareURL(srv)
	s.registerParseLink(srv)
	s.registerScanHTML(srv)
	s.registerResolveHTML(srv)
	s.registerProbeHTML(srv)
	if s.sessions != nil {
		s.registerSessions(srv)
		s.registerSearch(srv)
	}
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	sch := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sch["required"] = required
	}
	return sch
}

func (s *Service) register(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, newReq func() any) {
	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		r := newReq()
		if r == nil {
			return &kit.MCPDecodeResult{}, nil
		}
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, r); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: r}, nil
	}
	kit.RegisterMCPTool(srv, tool, kit.Logging(s.logger, tool.Name)(endpoint), decode)
}

var fingerprintSchema = map[string]any{
	"type":        "object",
	"description": "Comment fingerprint: text, username, timestamp, hash, optional commentId, videoId, videoTimestamp",
}

// --- share_url ---

type shareReq struct {
	URL     string                  `json:"url"`
	Comment fingerprint.Fingerprint `json:"comment"`
}

func (s *Service) registerShareURL(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "commentlink_share_url",
		Description: "Build the shareable link for a comment on a page. The hash is computed from the text when missing.",
		InputSchema: inputSchema(map[string]any{
			"url":     map[string]any{"type": "string", "description": "Page URL the comment appears on"},
			"comment": fingerprintSchema,
		}, []string{"url", "comment"}),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*shareReq)
		p, ok := platform.Identify(r.URL)
		if !ok {
			return nil, fmt.Errorf("%w: %s", session.ErrUnsupported, r.URL)
		}
		fp := r.Comment
		if fp.Hash == "" {
			fp.Hash = fingerprint.HashOf(fp.Text)
		}
		link, err := sharelink.Build(sharelink.Strip(r.URL), fp, p)
		if err != nil {
			return nil, err
		}
		return map[string]any{"link": link, "platform": p.Name}, nil
	}
	s.register(srv, tool, endpoint, func() any { return &shareReq{} })
}

// --- parse_link ---

type parseReq struct {
	Link string `json:"link"`
}

func (s *Service) registerParseLink(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "commentlink_parse_link",
		Description: "Decode the comment fingerprint carried by a shared link.",
		InputSchema: inputSchema(map[string]any{
			"link": map[string]any{"type": "string", "description": "Shared link"},
		}, []string{"link"}),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*parseReq)
		fp, ok, err := sharelink.Parse(r.Link)
		if err != nil {
			return nil, err
		}
		out := map[string]any{"shared": ok, "page": sharelink.Strip(r.Link)}
		if ok {
			out["comment"] = fp
		}
		return out, nil
	}
	s.register(srv, tool, endpoint, func() any { return &parseReq{} })
}

// --- scan_html ---

type scanReq struct {
	HTML    string `json:"html"`
	URL     string `json:"url"`
	Preview bool   `json:"preview"`
}

func (s *Service) registerScanHTML(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "commentlink_scan_html",
		Description: "List the comments of an HTML page with their fingerprints and share links.",
		InputSchema: inputSchema(map[string]any{
			"html":    map[string]any{"type": "string", "description": "Page HTML"},
			"url":     map[string]any{"type": "string", "description": "URL the page was served at"},
			"preview": map[string]any{"type": "boolean", "description": "Include a markdown preview of each comment"},
		}, []string{"html", "url"}),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*scanReq)
		return s.inspector.Scan(r.HTML, r.URL, r.Preview)
	}
	s.register(srv, tool, endpoint, func() any { return &scanReq{} })
}

// --- resolve_html ---

type resolveReq struct {
	HTML string `json:"html"`
	Link string `json:"link"`
}

func (s *Service) registerResolveHTML(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "commentlink_resolve_html",
		Description: "Find the comment a shared link points at within an HTML page.",
		InputSchema: inputSchema(map[string]any{
			"html": map[string]any{"type": "string", "description": "Page HTML"},
			"link": map[string]any{"type": "string", "description": "Shared link"},
		}, []string{"html", "link"}),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*resolveReq)
		return s.inspector.Resolve(r.HTML, r.Link)
	}
	s.register(srv, tool, endpoint, func() any { return &resolveReq{} })
}

// --- probe_html ---

type probeReq struct {
	HTML string `json:"html"`
}

func (s *Service) registerProbeHTML(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "commentlink_probe_html",
		Description: "Suggest comment container and field selectors for a page whose markup changed.",
		InputSchema: inputSchema(map[string]any{
			"html": map[string]any{"type": "string", "description": "Page HTML"},
		}, []string{"html"}),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		return inspect.Probe(req.(*probeReq).HTML)
	}
	s.register(srv, tool, endpoint, func() any { return &probeReq{} })
}

// --- sessions ---

func (s *Service) registerSessions(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "commentlink_sessions",
		Description: "List open browser sessions.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{"sessions": s.sessions.List()}, nil
	}
	s.register(srv, tool, endpoint, func() any { return nil })
}

// --- search ---

type searchReq struct {
	Session string `json:"session"`
	Link    string `json:"link"`
}

func (s *Service) registerSearch(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "commentlink_search",
		Description: "Search an open session's page for the comment of a shared link and highlight it.",
		InputSchema: inputSchema(map[string]any{
			"session": map[string]any{"type": "string", "description": "Session id"},
			"link":    map[string]any{"type": "string", "description": "Shared link"},
		}, []string{"session", "link"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*searchReq)
		fp, ok, err := sharelink.Parse(r.Link)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: no %s parameter", sharelink.ErrMalformed, sharelink.Param)
		}
		sess, err := s.sessions.Get(r.Session)
		if err != nil {
			return nil, err
		}
		out, err := sess.Search(kit.WithSessionID(ctx, r.Session), fp)
		if err != nil {
			return nil, err
		}
		res := map[string]any{"state": out.State.String(), "attempts": out.Attempts}
		if out.Element != nil {
			res["tier"] = out.Tier.String()
		}
		return res, nil
	}
	s.register(srv, tool, endpoint, func() any { return &searchReq{} })
}
