package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/visanavi/vnavi/internal/controller"
	"github.com/visanavi/vnavi/internal/env"
	"github.com/visanavi/vnavi/internal/history"
	"github.com/visanavi/vnavi/internal/render"
	"github.com/visanavi/vnavi/internal/session"
)

// MCPDeps holds dependencies for the MCP surface. The controller must have
// been built with the given sink so answers can be read back after a submit.
type MCPDeps struct {
	Mode       env.Mode
	Controller *controller.Controller
	Sink       *render.Capture
	Store      *session.Store
	History    *history.Store // optional
	// DefaultLang is used when a call supplies no lang argument.
	DefaultLang string
}

// NewMCPServer exposes the Q&A pipeline as MCP tools over the given deps.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"vnavi",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("vnavi is a payment-gated Q&A client for visa and residency questions."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Submit a question through the membership gate to the Q&A backend and return the rendered answer HTML."),
			mcp.WithString("question", mcp.Description("The question to ask"), mcp.Required()),
			mcp.WithString("lang", mcp.Description("Answer language code (default JP)")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("membership",
			mcp.WithDescription("Report the current membership state: environment mode, saved email, and the cached verdict."),
		),
		mcpMembership(deps),
	)

	if deps.History != nil {
		s.AddResource(
			mcp.NewResource(
				"vnavi://recent",
				"Recent Questions",
				mcp.WithResourceDescription("Last 10 submitted questions and their status"),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceRecent(deps),
		)
	}

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		lang := req.GetString("lang", "")
		if lang == "" {
			lang = deps.DefaultLang
		}

		if err := deps.Controller.Submit(ctx, question, lang); err != nil {
			if errors.Is(err, controller.ErrInFlight) {
				return mcpError("a submission is already in flight; try again shortly"), nil
			}
			return mcpError(fmt.Sprintf("submit failed: %v", err)), nil
		}

		return mcpText(deps.Sink.Last()), nil
	}
}

func mcpMembership(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		type state struct {
			Mode    string               `json:"mode"`
			Email   string               `json:"email,omitempty"`
			Cache   *session.MemberCache `json:"cache,omitempty"`
			Expired bool                 `json:"cache_expired,omitempty"`
		}
		st := state{
			Mode:  deps.Mode.String(),
			Email: deps.Store.SavedEmail(nil),
		}
		if c := deps.Store.ReadMemberCache(); c != nil {
			st.Cache = c
			st.Expired = c.Expired(time.Now())
		}

		b, err := json.Marshal(st)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal state: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		interactions, err := deps.History.List(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list interactions: %w", err)
		}

		type summary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Question  string `json:"question"`
			Status    string `json:"status"`
		}
		summaries := make([]summary, len(interactions))
		for i, ix := range interactions {
			summaries[i] = summary{
				ID:        ix.ID,
				CreatedAt: ix.CreatedAt.Format(time.RFC3339),
				Question:  ix.Question,
				Status:    ix.Status,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal interactions: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
