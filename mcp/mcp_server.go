// Package mcp exposes read-only lifecycle tools over the Model Context
// Protocol so agent tooling can inspect wallet state without going through
// the HTTP API. Every tool is a read; claims and verifier decisions stay
// HTTP-only.
package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"decleanup-backend/core/lifecycle"
	"decleanup-backend/services"
)

// ClaimedLister is the slice of the wallet cache the MCP tools need.
type ClaimedLister interface {
	ClaimedSubmissionIDs(ctx context.Context, owner string) ([]uint64, error)
}

// MCPServer wraps the mcp-go server with the lifecycle tools.
type MCPServer struct {
	mcpServer    *server.MCPServer
	resolver     *lifecycle.Resolver
	ledger       lifecycle.LedgerGateway
	verification *services.VerificationService
	claimed      ClaimedLister
}

// NewMCPServer creates the MCP server and registers all tools.
func NewMCPServer(
	resolver *lifecycle.Resolver,
	ledger lifecycle.LedgerGateway,
	verification *services.VerificationService,
	claimed ClaimedLister,
) *MCPServer {
	mcpServer := server.NewMCPServer(
		"DeCleanup Lifecycle MCP Server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s := &MCPServer{
		mcpServer:    mcpServer,
		resolver:     resolver,
		ledger:       ledger,
		verification: verification,
		claimed:      claimed,
	}
	s.registerTools()
	return s
}

// GetMCPServer returns the underlying MCP server for transport setup.
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *MCPServer) registerTools() {
	s.registerResolveStatusTool()
	s.registerGetSubmissionTool()
	s.registerGetAdvisoryTool()
	s.registerListClaimedTool()
	s.registerReviewQueueTool()
}

// registerResolveStatusTool resolves the lifecycle view for a wallet.
func (s *MCPServer) registerResolveStatusTool() {
	tool := mcp.NewTool("resolve_status",
		mcp.WithDescription("Resolve the claim lifecycle status for a wallet address"),
		mcp.WithString("address", mcp.Required(), mcp.Description("Wallet address to resolve")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		address, err := request.RequireString("address")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		status, err := s.resolver.Resolve(ctx, address)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to resolve status: %v", err)), nil
		}
		if status == nil {
			return mcp.NewToolResultText(fmt.Sprintf("No actionable submission for %s", address)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Lifecycle status:\n\n%+v", status)), nil
	})
}

// registerGetSubmissionTool fetches a raw ledger submission record.
func (s *MCPServer) registerGetSubmissionTool() {
	tool := mcp.NewTool("get_submission",
		mcp.WithDescription("Get a cleanup submission record from the ledger"),
		mcp.WithNumber("submission_id", mcp.Required(), mcp.Description("Submission id to fetch")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireFloat("submission_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		sub, err := s.ledger.GetSubmission(ctx, uint64(id))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get submission: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Submission details:\n\n%+v", sub)), nil
	})
}

// registerGetAdvisoryTool fetches the stored dMRV advisory.
func (s *MCPServer) registerGetAdvisoryTool() {
	tool := mcp.NewTool("get_advisory",
		mcp.WithDescription("Get the dMRV pre-screen advisory for a submission"),
		mcp.WithNumber("submission_id", mcp.Required(), mcp.Description("Submission id")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireFloat("submission_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		adv, err := s.verification.Advisory(ctx, uint64(id))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get advisory: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Advisory:\n\n%+v", adv)), nil
	})
}

// registerListClaimedTool lists the local claim records for a wallet.
func (s *MCPServer) registerListClaimedTool() {
	tool := mcp.NewTool("list_claimed",
		mcp.WithDescription("List submission ids this backend has recorded as claimed for a wallet"),
		mcp.WithString("address", mcp.Required(), mcp.Description("Wallet address")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		address, err := request.RequireString("address")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ids, err := s.claimed.ClaimedSubmissionIDs(ctx, address)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list claimed submissions: %v", err)), nil
		}

		result := map[string]interface{}{
			"claimed_ids": ids,
			"total_count": len(ids),
		}
		return mcp.NewToolResultText(fmt.Sprintf("Found %d claimed submissions:\n\n%+v", len(ids), result)), nil
	})
}

// registerReviewQueueTool lists advisories waiting on a human verifier.
func (s *MCPServer) registerReviewQueueTool() {
	tool := mcp.NewTool("list_review_queue",
		mcp.WithDescription("List submissions routed to manual review without a verifier decision"),
		mcp.WithNumber("limit", mcp.Description("Maximum number of advisories to return")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		limit := 0
		if v, ok := args["limit"].(float64); ok {
			limit = int(v)
		}

		pending, err := s.verification.PendingReview(ctx, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list review queue: %v", err)), nil
		}

		result := map[string]interface{}{
			"pending":     pending,
			"total_count": len(pending),
		}
		return mcp.NewToolResultText(fmt.Sprintf("Found %d advisories pending review:\n\n%+v", len(pending), result)), nil
	})
}
