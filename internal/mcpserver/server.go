// Package mcpserver exposes image recomposition as a Model Context Protocol
// tool so that AI agents can call it over stdio.
package mcpserver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fpang/mystic-studio/internal/imagedata"
	"github.com/fpang/mystic-studio/internal/session"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

// ToolRecompose is the name of the recomposition tool.
const ToolRecompose = "recompose_image"

// RecomposeInput is the argument object of the recompose_image tool.
type RecomposeInput struct {
	ImagePath  string `json:"image_path" jsonschema:"absolute path of the image file to recompose"`
	Prompt     string `json:"prompt,omitempty" jsonschema:"optional instruction; empty asks for the best 4:5 composition"`
	OutputPath string `json:"output_path,omitempty" jsonschema:"optional path where the recomposed PNG is written"`
}

// Server wraps an MCP server with the recompose_image tool registered.
type Server struct {
	editor         session.Editor
	maxUploadBytes int
	mcpServer      *mcp.Server
}

// New creates a Server backed by ed.
func New(ed session.Editor, version string, maxUploadBytes int) *Server {
	if maxUploadBytes <= 0 {
		maxUploadBytes = session.DefaultMaxUploadBytes
	}
	s := &Server{
		editor:         ed,
		maxUploadBytes: maxUploadBytes,
		mcpServer:      mcp.NewServer(&mcp.Implementation{Name: "mystic-studio", Version: version}, nil),
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolRecompose,
		Description: "Recompose an image into a 4:5 portrait frame: crops to the subject and " +
			"outpaints missing background. Returns the result as a PNG image.",
	}, s.recompose)
	return s
}

// ServeStdio serves MCP over stdin/stdout until ctx is done or the client
// disconnects.
func (s *Server) ServeStdio(ctx context.Context) error {
	log.Info().Str("tool", ToolRecompose).Msg("Starting MCP server on stdio")
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) recompose(ctx context.Context, _ *mcp.CallToolRequest, in RecomposeInput) (*mcp.CallToolResult, any, error) {
	start := time.Now()

	if in.ImagePath == "" {
		return toolError("image_path is required"), nil, nil
	}
	data, err := os.ReadFile(in.ImagePath)
	if err != nil {
		return toolError(fmt.Sprintf("cannot read %s: %v", in.ImagePath, err)), nil, nil
	}
	if len(data) > s.maxUploadBytes {
		return toolError(fmt.Sprintf("%s is %d bytes, larger than the %d byte limit", in.ImagePath, len(data), s.maxUploadBytes)), nil, nil
	}
	original, err := imagedata.FromUpload(data, in.ImagePath)
	if err != nil {
		return toolError(fmt.Sprintf("%s: %v", in.ImagePath, err)), nil, nil
	}

	edited, err := s.editor.EditImage(ctx, original, in.Prompt)
	if err != nil {
		log.Warn().Err(err).Str("image", in.ImagePath).Msg("MCP recompose failed")
		return toolError(err.Error()), nil, nil
	}

	out, err := imagedata.ParseDataURI(edited).Decode()
	if err != nil {
		return toolError(fmt.Sprintf("invalid result: %v", err)), nil, nil
	}

	summary := fmt.Sprintf("Recomposed %s (%d bytes) in %s.", filepath.Base(in.ImagePath), len(out), time.Since(start).Round(time.Millisecond))
	if in.OutputPath != "" {
		if err := os.WriteFile(in.OutputPath, out, 0o644); err != nil {
			return toolError(fmt.Sprintf("cannot write %s: %v", in.OutputPath, err)), nil, nil
		}
		summary += " Saved to " + in.OutputPath + "."
	}

	log.Info().Str("image", in.ImagePath).Int("bytes", len(out)).Dur("duration", time.Since(start)).Msg("MCP recompose complete")
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summary},
			&mcp.ImageContent{MIMEType: "image/png", Data: out},
		},
	}, nil, nil
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}
