// Package mcp exposes candidate search as a Model Context Protocol tool.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pharmatrace-server/internal/domain"
	"github.com/pharmatrace-server/internal/service"
)

// ToolFindCandidates is the name of the single registered tool.
const ToolFindCandidates = "find_candidates"

// CandidateFinder is the search the tool delegates to.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, req *domain.CandidateSearchRequest) (*domain.CandidateSearchResponse, error)
}

var _ CandidateFinder = (*service.CandidateFilter)(nil)

// Server is an MCP server over stdio.
type Server struct {
	mcpServer *mcp.Server
	finder    CandidateFinder
	logger    *logrus.Logger
}

// NewServer creates the MCP server and registers its tool.
func NewServer(logger *logrus.Logger, cfg domain.MCPConfig, finder CandidateFinder) *Server {
	name := cfg.ServerName
	if name == "" {
		name = "pharmatrace-candidates"
	}
	version := cfg.ServerVersion
	if version == "" {
		version = "1.0.0"
	}

	serverInfo := &mcp.Implementation{
		Name:    name,
		Version: version,
	}

	s := &Server{
		mcpServer: mcp.NewServer(serverInfo, nil),
		finder:    finder,
		logger:    logger,
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolFindCandidates,
		Description: "Search consented-pool patients matched to open or recruiting trials. " +
			"Filters by age range (e.g. \"50-59\" or \"60+\"), primary condition, gender and " +
			"ethnicity group, ordered by match score.",
	}, s.handleFindCandidates)

	s.logger.WithField("tool_name", ToolFindCandidates).Debug("Registered MCP tool")
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting MCP server on stdio")
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}
