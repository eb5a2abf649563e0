package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pharmatrace-server/internal/domain"
)

// FindCandidatesParams mirrors the HTTP request body with plain JSON types.
type FindCandidatesParams struct {
	Limit        *int                      `json:"limit,omitempty" jsonschema:"maximum candidates to return, default 10, at most 200"`
	MinScore     *int                      `json:"min_score,omitempty" jsonschema:"minimum match score from 0 to 100"`
	Demographics domain.SearchDemographics `json:"demographics"`
	Clinical     ClinicalParams            `json:"clinical"`
}

// ClinicalParams carries the clinical criteria of a tool call.
type ClinicalParams struct {
	PrimaryCondition string `json:"primary_condition" jsonschema:"condition matched against trial titles and required conditions"`
}

func (p FindCandidatesParams) toRequest() *domain.CandidateSearchRequest {
	req := &domain.CandidateSearchRequest{
		Demographics: p.Demographics,
		Clinical:     domain.SearchClinical{PrimaryCondition: p.Clinical.PrimaryCondition},
	}
	if p.Limit != nil {
		req.Limit = domain.IntValue(*p.Limit)
	}
	if p.MinScore != nil {
		req.MinScore = domain.IntValue(*p.MinScore)
	}
	return req
}

// handleFindCandidates runs a search. Validation and store failures are tool errors, not
// protocol errors.
func (s *Server) handleFindCandidates(ctx context.Context, _ *mcp.CallToolRequest, params FindCandidatesParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolFindCandidates).Info("Tool invoked")

	resp, err := s.finder.FindCandidates(ctx, params.toRequest())
	if err != nil {
		return s.errorResult(err), nil, nil
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return s.errorResult(err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
	}, nil, nil
}

func (s *Server) errorResult(err error) *mcp.CallToolResult {
	var verrs domain.ValidationErrors
	var verr *domain.ValidationError
	msg := "internal error while searching candidates"
	if errors.As(err, &verrs) || errors.As(err, &verr) {
		msg = err.Error()
	} else {
		s.logger.WithError(err).WithField("tool", ToolFindCandidates).Error("Tool failed")
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}

