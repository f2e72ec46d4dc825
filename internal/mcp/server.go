package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/voicelocal/voicelocal/internal/ctxutil"
	"github.com/voicelocal/voicelocal/internal/feed"
	"github.com/voicelocal/voicelocal/internal/models"
	"github.com/voicelocal/voicelocal/internal/store"
)

// Server exposes the issue store as MCP tools.
type Server struct {
	store    store.Store
	actor    *models.User
	pageSize int
}

// NewServer creates the MCP server wrapper. actor is the user that tools act
// as when the request context carries none; it may be nil for a read-only
// session.
func NewServer(s store.Store, actor *models.User, pageSize int) *Server {
	if pageSize <= 0 {
		pageSize = feed.DefaultPageSize
	}
	return &Server{store: s, actor: actor, pageSize: pageSize}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("voicelocal", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.getIssueTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.voteTool())
	srv.AddTool(s.addCommentTool())
	srv.AddTool(s.updateStatusTool())
	srv.AddTool(s.listCategoriesTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func (s *Server) actorFor(ctx context.Context) (*models.User, error) {
	if u := ctxutil.ActorFromContext(ctx); u != nil {
		return u, nil
	}
	if s.actor != nil {
		return s.actor, nil
	}
	return nil, errors.New("no acting user: run 'voicelocal login' or set user.id in the config")
}

// toolError turns a store error into a tool result. Tool failures are
// reported in the result, never as a protocol error.
func toolError(action string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", action, err))
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

type issueSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Location  string `json:"location"`
	Status    string `json:"status"`
	Category  string `json:"category,omitempty"`
	Priority  string `json:"priority,omitempty"`
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
	Comments  int    `json:"comments"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at"`
}

func summarize(i *models.Issue) issueSummary {
	return issueSummary{
		ID:        i.ID,
		Title:     i.Title,
		Location:  i.Location,
		Status:    string(i.Status),
		Category:  i.Category,
		Priority:  string(i.Priority),
		Upvotes:   i.Upvotes,
		Downvotes: i.Downvotes,
		Comments:  len(i.Comments),
		Author:    i.Author,
		CreatedAt: i.CreatedAt.Format(time.RFC3339),
	}
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// voicelocal_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("voicelocal_list_issues",
		mcp.WithDescription("List reported civic issues, newest first. Returns a JSON page with items, total, page and totalPages."),
		mcp.WithString("query", mcp.Description("Case-insensitive text to find in title, description or location")),
		mcp.WithString("status", mcp.Description("Filter by status: open, in-progress, resolved, rejected")),
		mcp.WithString("category", mcp.Description("Filter by category (see voicelocal_list_categories)")),
		mcp.WithString("priority", mcp.Description("Filter by priority: low, medium, high")),
		mcp.WithString("sort", mcp.Description("Sort order: recent (default), votes, comments")),
		mcp.WithString("where", mcp.Description(`Boolean filter expression, e.g. score > 10 && status == "open"`)),
		mcp.WithNumber("page", mcp.Description("1-based page number (default 1)")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := feed.Query{
		Search:   request.GetString("query", ""),
		Status:   models.IssueStatus(request.GetString("status", "")),
		Category: request.GetString("category", ""),
		Priority: models.IssuePriority(request.GetString("priority", "")),
		Sort:     request.GetString("sort", ""),
		Where:    request.GetString("where", ""),
		Page:     request.GetInt("page", 1),
		PageSize: s.pageSize,
	}
	if q.Status != "" && !q.Status.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown status %q", q.Status)), nil
	}

	issues, err := s.store.ListIssues(ctx)
	if err != nil {
		return toolError("list issues", err), nil
	}
	page, err := feed.Apply(issues, q)
	if err != nil {
		return toolError("list issues", err), nil
	}

	out := struct {
		Items      []issueSummary `json:"items"`
		Total      int            `json:"total"`
		Page       int            `json:"page"`
		TotalPages int            `json:"totalPages"`
	}{
		Items:      make([]issueSummary, len(page.Items)),
		Total:      page.Total,
		Page:       page.Page,
		TotalPages: page.TotalPages,
	}
	for i, issue := range page.Items {
		out.Items[i] = summarize(issue)
	}
	return jsonResult(out), nil
}

// voicelocal_get_issue
func (s *Server) getIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("voicelocal_get_issue",
		mcp.WithDescription("Get one issue with its comments and vote counts."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Issue ID")),
	)
	return tool, s.handleGetIssue
}

func (s *Server) handleGetIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return toolError("get issue", err), nil
	}
	return jsonResult(issue), nil
}

// voicelocal_create_issue
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("voicelocal_create_issue",
		mcp.WithDescription("Report a new civic issue as the current user. Returns the created issue as JSON."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short title (5-100 characters)")),
		mcp.WithString("description", mcp.Required(), mcp.Description("What is wrong (20-1000 characters)")),
		mcp.WithString("location", mcp.Required(), mcp.Description("Where it is (3-100 characters)")),
		mcp.WithString("category", mcp.Description("Category; prefer a name from voicelocal_list_categories")),
		mcp.WithString("priority", mcp.Description("Priority: low, medium, high")),
		mcp.WithString("image_url", mcp.Description("Optional http(s) link to a photo")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, err := s.actorFor(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	description, err := request.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: description"), nil
	}
	location, err := request.RequireString("location")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: location"), nil
	}

	in := models.IssueInput{
		Title:       title,
		Description: description,
		Location:    location,
		ImageURL:    request.GetString("image_url", ""),
		Category:    request.GetString("category", ""),
		Priority:    models.IssuePriority(request.GetString("priority", "")),
	}
	if err := in.ValidateForm(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	issue, err := s.store.CreateIssue(ctx, in, actor)
	if err != nil {
		return toolError("create issue", err), nil
	}
	return jsonResult(issue), nil
}

// voicelocal_vote
func (s *Server) voteTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("voicelocal_vote",
		mcp.WithDescription("Vote on an issue as the current user. Voting the same direction twice retracts the vote; voting the other direction switches it."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Issue ID")),
		mcp.WithString("direction", mcp.Required(), mcp.Description("up or down")),
	)
	return tool, s.handleVote
}

func (s *Server) handleVote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, err := s.actorFor(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	direction, err := request.RequireString("direction")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: direction"), nil
	}

	issue, err := s.store.Vote(ctx, id, actor.ID, models.VoteType(direction))
	if err != nil {
		return toolError("vote", err), nil
	}
	out := struct {
		issueSummary
		YourVote string `json:"your_vote"`
	}{
		issueSummary: summarize(issue),
		YourVote:     string(issue.UserVotes[actor.ID]),
	}
	return jsonResult(out), nil
}

// voicelocal_add_comment
func (s *Server) addCommentTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("voicelocal_add_comment",
		mcp.WithDescription("Comment on an issue as the current user. Returns the new comment as JSON."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Issue ID")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Comment text (3-500 characters)")),
	)
	return tool, s.handleAddComment
}

func (s *Server) handleAddComment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, err := s.actorFor(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	content, err := request.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: content"), nil
	}
	if err := models.ValidateCommentForm(content); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	c, err := s.store.AddComment(ctx, id, models.CommentInput{
		Author:   actor.DisplayName,
		AuthorID: actor.ID,
		Content:  content,
	})
	if err != nil {
		return toolError("add comment", err), nil
	}
	return jsonResult(c), nil
}

// voicelocal_update_status
func (s *Server) updateStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("voicelocal_update_status",
		mcp.WithDescription("Change the status of an issue. Only the issue's author or an admin may do this."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Issue ID")),
		mcp.WithString("status", mcp.Required(), mcp.Description("New status: open, in-progress, resolved, rejected")),
	)
	return tool, s.handleUpdateStatus
}

func (s *Server) handleUpdateStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, err := s.actorFor(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	status, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: status"), nil
	}

	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return toolError("update issue", err), nil
	}
	if !actor.IsAdmin() && issue.AuthorID != actor.ID {
		return mcp.NewToolResultError("only the author or an admin can change this issue"), nil
	}

	updated, err := s.store.UpdateIssue(ctx, id, models.IssuePatch{Status: models.Ptr(models.IssueStatus(status))})
	if err != nil {
		return toolError("update issue", err), nil
	}
	return jsonResult(summarize(updated)), nil
}

// voicelocal_list_categories
func (s *Server) listCategoriesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("voicelocal_list_categories",
		mcp.WithDescription("List the registered issue categories with their colors and descriptions."),
	)
	return tool, s.handleListCategories
}

func (s *Server) handleListCategories(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return toolError("list categories", err), nil
	}
	return jsonResult(cats), nil
}
