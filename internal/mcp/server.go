package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/shopspring/decimal"

	"flowmarket/internal/hub"
	"flowmarket/pkg/models"
)

// Server exposes the hub's operations as MCP tools. Every tool call executes
// as the configured agent account.
type Server struct {
	mcpServer *server.MCPServer
	hub       *hub.Hub
	account   models.AccountID
}

func NewServer(h *hub.Hub, agentAccount models.AccountID) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Flowmarket",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		hub:     h,
		account: agentAccount,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// Handler returns the streamable HTTP transport for the MCP server, suitable
// for mounting on the main router.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_workflows",
			mcp.WithDescription("List published workflow records, optionally filtered by category"),
			mcp.WithString("category", mcp.Description("Only return listed workflows in this category")),
		),
		s.handleListWorkflows,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"issue_ticket",
			mcp.WithDescription("Buy the right to clone a workflow; the offer is escrowed in the returned ticket"),
			mcp.WithNumber("workflow_id", mcp.Required(), mcp.Description("The workflow record id")),
			mcp.WithString("offer", mcp.Description("Amount to escrow; omit for free workflows")),
		),
		s.handleIssueTicket,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"clone_workflow",
			mcp.WithDescription("Redeem a ticket into an owned workflow instance"),
			mcp.WithNumber("workflow_id", mcp.Required(), mcp.Description("The workflow record id")),
			mcp.WithString("ticket_id", mcp.Description("Ticket from issue_ticket; omit for a creator self-clone")),
		),
		s.handleCloneWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"run_workflow",
			mcp.WithDescription("Run an owned workflow instance"),
			mcp.WithNumber("workflow_id", mcp.Required(), mcp.Description("The workflow record id")),
		),
		s.handleRunWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_listings",
			mcp.WithDescription("List open marketplace listings"),
		),
		s.handleListListings,
	)
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)

	var records any
	if category, ok := args["category"].(string); ok && category != "" {
		records = s.hub.WorkflowsByCategory(category)
	} else {
		records = s.hub.Workflows()
	}

	jsonBytes, _ := json.Marshal(records)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleIssueTicket(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	rawID, ok := args["workflow_id"].(float64)
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}

	var offer *decimal.Decimal
	if raw, ok := args["offer"].(string); ok && raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return mcp.NewToolResultError("Invalid offer: " + raw), nil
		}
		offer = &d
	}

	ticket, err := s.hub.IssueTicket(ctx, s.account, models.WorkflowID(rawID), offer)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to issue ticket: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(map[string]any{
		"ticket_id":   ticket.ID,
		"workflow_id": ticket.WorkflowID,
		"price":       ticket.Price.String(),
	})
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleCloneWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	rawID, ok := args["workflow_id"].(float64)
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}
	ticketID, _ := args["ticket_id"].(string)

	token, err := s.hub.CloneWorkflow(ctx, s.account, models.WorkflowID(rawID), ticketID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to clone: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(map[string]any{
		"workflow_id": token.ID,
		"creator":     token.Creator,
	})
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleRunWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	rawID, ok := args["workflow_id"].(float64)
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}

	if err := s.hub.RunWorkflow(ctx, s.account, models.WorkflowID(rawID), models.TriggerManual); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to run: %v", err)), nil
	}

	return mcp.NewToolResultText("Run completed"), nil
}

func (s *Server) handleListListings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jsonBytes, _ := json.Marshal(s.hub.Listings())
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
