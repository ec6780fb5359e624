package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/jsonutil"
)

const (
	versionURI     = "nadscan://version"
	jobURIPrefix   = "nadscan://jobs/"
	jobURITemplate = jobURIPrefix + "{id}"
)

func (s *Server) registerResources() {
	s.addVersionResource()
	s.addJobResource()
}

// ═══════════════════════════════════════════════════════════════════════════
// nadscan://version
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) addVersionResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			URI:         versionURI,
			Name:        "nadscan version",
			Description: "Server version and the registered tool inventory.",
			MIMEType:    defaults.ContentTypeJSON,
		},
		func(context.Context, *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			infos := s.cfg.Tools.Describe()
			names := make([]string, 0, len(infos))
			for _, info := range infos {
				names = append(names, info.Name)
			}
			data, err := jsonutil.MarshalIndent(map[string]any{
				"name":    defaults.ToolName,
				"version": defaults.Version,
				"tools":   names,
			}, "  ")
			if err != nil {
				return nil, err
			}
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{
					{URI: versionURI, MIMEType: defaults.ContentTypeJSON, Text: string(data)},
				},
			}, nil
		},
	)
}

// ═══════════════════════════════════════════════════════════════════════════
// nadscan://jobs/{id}
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) addJobResource() {
	s.mcp.AddResourceTemplate(
		&mcp.ResourceTemplate{
			URITemplate: jobURITemplate,
			Name:        "Job",
			Description: "A job view including results, errors, findings and its most recent events.",
			MIMEType:    defaults.ContentTypeJSON,
		},
		func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			uri := req.Params.URI
			id := strings.TrimPrefix(uri, jobURIPrefix)
			if id == "" || id == uri {
				return nil, fmt.Errorf("job id is required in URI (e.g. %s5f0c...)", jobURIPrefix)
			}
			v, ok := s.cfg.Jobs.Get(id)
			if !ok {
				return nil, fmt.Errorf("job %q not found", id)
			}
			data, err := jsonutil.MarshalIndent(v, "  ")
			if err != nil {
				return nil, err
			}
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{
					{URI: uri, MIMEType: defaults.ContentTypeJSON, Text: string(data)},
				},
			}, nil
		},
	)
}
