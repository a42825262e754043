package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/example/loom/internal/ports/primary"
)

// Each tool follows the same pattern: a struct holding the daemon client,
// Definition() returning the schema, Handle() translating the call.

// SaveMemoryTool handles the save_memory MCP tool.
type SaveMemoryTool struct {
	client *Client
}

// NewSaveMemoryTool creates a SaveMemoryTool.
func NewSaveMemoryTool(client *Client) *SaveMemoryTool {
	return &SaveMemoryTool{client: client}
}

// Definition returns the MCP tool definition for save_memory.
func (t *SaveMemoryTool) Definition() mcp.Tool {
	return mcp.NewTool("save_memory",
		mcp.WithDescription(
			"Save a durable memory event: a decision made, a discovery about the codebase, "+
				"or an observation worth keeping across sessions.",
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Event type: decision, discovery, observation, task, error"),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("One-line summary of the event"),
		),
		mcp.WithString("text",
			mcp.Description("Longer body with the full context"),
		),
		mcp.WithNumber("importance",
			mcp.Description("Importance in [0,1]; defaults to 0.5"),
		),
	)
}

// Handle processes the save_memory tool call.
func (t *SaveMemoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	if title == "" {
		return mcp.NewToolResultError("'title' is required"), nil
	}

	body := map[string]any{
		"type":  req.GetString("type", "observation"),
		"title": title,
		"text":  req.GetString("text", ""),
	}
	if imp := floatArg(req, "importance", 0); imp > 0 {
		body["importance"] = imp
	}

	var saved struct {
		ID int64 `json:"id"`
	}
	if err := t.client.post(ctx, "/memory/save", body, &saved); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Saved memory event #%d.", saved.ID)), nil
}

// RetrieveTool handles the retrieve MCP tool.
type RetrieveTool struct {
	client *Client
}

// NewRetrieveTool creates a RetrieveTool.
func NewRetrieveTool(client *Client) *RetrieveTool {
	return &RetrieveTool{client: client}
}

// Definition returns the MCP tool definition for retrieve.
func (t *RetrieveTool) Definition() mcp.Tool {
	return mcp.NewTool("retrieve",
		mcp.WithDescription(
			"Search the project's code and governance documents (rules, ADRs, templates) "+
				"with one query. Results are ranked and merged across both corpora.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithString("corpus",
			mcp.Description("Restrict to: code, governance, or hybrid (default: auto-classified)"),
		),
		mcp.WithString("doc_type",
			mcp.Description("Restrict governance hits to one type: rule, adr, template, skill, ..."),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Max results (default 10)"),
		),
	)
}

// Handle processes the retrieve tool call.
func (t *RetrieveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	var resp primary.RetrievalResponse
	err := t.client.post(ctx, "/retrieval/search", map[string]any{
		"query":    query,
		"corpus":   req.GetString("corpus", ""),
		"doc_type": req.GetString("doc_type", ""),
		"top_k":    intArg(req, "top_k", 0),
	}, &resp)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if len(resp.Results) == 0 {
		return mcp.NewToolResultText("No results."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d results (%s corpus):\n\n", len(resp.Results), resp.Corpus)
	for i, result := range resp.Results {
		loc := result.FilePath
		if result.LineStart > 0 {
			loc = fmt.Sprintf("%s:%d-%d", result.FilePath, result.LineStart, result.LineEnd)
		}
		fmt.Fprintf(&b, "[%d] %.2f %s %s\n", i+1, result.Score, result.Source, loc)
		if result.Title != "" {
			fmt.Fprintf(&b, "    %s\n", result.Title)
		}
		if result.Excerpt != "" {
			fmt.Fprintf(&b, "    %s\n", result.Excerpt)
		}
		b.WriteString("\n")
	}
	if len(resp.Degraded) > 0 {
		fmt.Fprintf(&b, "(degraded backends: %s)\n", strings.Join(resp.Degraded, ", "))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// SpecStatusTool handles the spec_status MCP tool.
type SpecStatusTool struct {
	client *Client
}

// NewSpecStatusTool creates a SpecStatusTool.
func NewSpecStatusTool(client *Client) *SpecStatusTool {
	return &SpecStatusTool{client: client}
}

// Definition returns the MCP tool definition for spec_status.
func (t *SpecStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("spec_status",
		mcp.WithDescription("Show the lifecycle state of all specs: phase, task progress, review iteration."),
		mcp.WithString("slug",
			mcp.Description("Restrict to one spec"),
		),
	)
}

// Handle processes the spec_status tool call.
func (t *SpecStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type specState struct {
		Slug            string `json:"slug"`
		Title           string `json:"title"`
		Phase           string `json:"phase"`
		TotalTasks      int    `json:"total_tasks"`
		CompletedTasks  int    `json:"completed_tasks"`
		ReviewIteration int    `json:"review_iteration"`
	}

	var states []specState
	if slug := req.GetString("slug", ""); slug != "" {
		var one specState
		if err := t.client.get(ctx, "/spec/state/"+slug, &one); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("spec lookup failed: %v", err)), nil
		}
		states = append(states, one)
	} else {
		var list struct {
			Specs []specState `json:"specs"`
		}
		if err := t.client.get(ctx, "/spec/state", &list); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("spec listing failed: %v", err)), nil
		}
		states = list.Specs
	}

	if len(states) == 0 {
		return mcp.NewToolResultText("No specs."), nil
	}

	var b strings.Builder
	for _, s := range states {
		fmt.Fprintf(&b, "%s [%s] tasks %d/%d", s.Slug, s.Phase, s.CompletedTasks, s.TotalTasks)
		if s.ReviewIteration > 0 {
			fmt.Fprintf(&b, " (fix iteration %d)", s.ReviewIteration)
		}
		if s.Title != "" {
			fmt.Fprintf(&b, " - %s", s.Title)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ListProposalsTool handles the list_proposals MCP tool.
type ListProposalsTool struct {
	client *Client
}

// NewListProposalsTool creates a ListProposalsTool.
func NewListProposalsTool(client *Client) *ListProposalsTool {
	return &ListProposalsTool{client: client}
}

// Definition returns the MCP tool definition for list_proposals.
func (t *ListProposalsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_proposals",
		mcp.WithDescription("List pending learning proposals (rules, ADRs, templates) awaiting a decision."),
		mcp.WithNumber("max_count",
			mcp.Description("Max proposals to return"),
		),
	)
}

// Handle processes the list_proposals tool call.
func (t *ListProposalsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var list struct {
		Proposals []primary.Proposal `json:"proposals"`
	}
	err := t.client.post(ctx, "/learning/proposals", map[string]any{
		"max_count": intArg(req, "max_count", 0),
	}, &list)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("proposal listing failed: %v", err)), nil
	}

	if len(list.Proposals) == 0 {
		return mcp.NewToolResultText("No pending proposals."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d pending proposals:\n\n", len(list.Proposals))
	for _, p := range list.Proposals {
		fmt.Fprintf(&b, "%s [%s, confidence %.2f] %s\n    %s\n    → %s\n\n",
			p.ID, p.Type, p.Confidence, p.Title, p.Description, p.ProposedPath)
	}
	b.WriteString("Use decide_proposal to accept, reject, or snooze.\n")
	return mcp.NewToolResultText(b.String()), nil
}

// DecideProposalTool handles the decide_proposal MCP tool.
type DecideProposalTool struct {
	client *Client
}

// NewDecideProposalTool creates a DecideProposalTool.
func NewDecideProposalTool(client *Client) *DecideProposalTool {
	return &DecideProposalTool{client: client}
}

// Definition returns the MCP tool definition for decide_proposal.
func (t *DecideProposalTool) Definition() mcp.Tool {
	return mcp.NewTool("decide_proposal",
		mcp.WithDescription(
			"Record the user's decision on a learning proposal. Accepting writes the "+
				"governance artifact; rejecting starts a cooldown for the pattern.",
		),
		mcp.WithString("proposal_id",
			mcp.Required(),
			mcp.Description("Proposal to decide"),
		),
		mcp.WithString("decision",
			mcp.Required(),
			mcp.Description("One of: accept, reject, ignore, snooze"),
		),
		mcp.WithString("edited_content",
			mcp.Description("User-edited artifact body, written verbatim on accept"),
		),
	)
}

// Handle processes the decide_proposal tool call.
func (t *DecideProposalTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	proposalID := req.GetString("proposal_id", "")
	decision := req.GetString("decision", "")
	if proposalID == "" || decision == "" {
		return mcp.NewToolResultError("'proposal_id' and 'decision' are required"), nil
	}

	var outcome primary.DecideResponse
	err := t.client.post(ctx, "/learning/decide", map[string]any{
		"proposal_id":    proposalID,
		"decision":       decision,
		"edited_content": req.GetString("edited_content", ""),
	}, &outcome)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("decide failed: %v", err)), nil
	}

	if outcome.AlreadyDone {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Proposal %s was already decided: %s.", outcome.ProposalID, outcome.Decision)), nil
	}
	msg := fmt.Sprintf("Recorded %s for proposal %s.", outcome.Decision, outcome.ProposalID)
	if outcome.ArtifactPath != "" {
		msg += fmt.Sprintf(" Artifact written to %s.", outcome.ArtifactPath)
	}
	return mcp.NewToolResultText(msg), nil
}
