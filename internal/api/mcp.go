package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/dreamhouse/internal/design"
	"github.com/kalambet/dreamhouse/internal/generation"
	"github.com/kalambet/dreamhouse/internal/project"
	"github.com/kalambet/dreamhouse/internal/recolor"
)

// NewMCPServer creates an MCP server with all dreamhouse tools and resources registered.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"dreamhouse",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("dreamhouse: generate illustrated house designs from preferences, then recolor rooms or render fly-through videos."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("design_house",
			mcp.WithDescription("Design a house: generates per-area descriptions, a budget and one image per area."),
			mcp.WithString("style", mcp.Description("Architectural style, e.g. "+strings.Join(design.Styles, ", ")), mcp.Required()),
			mcp.WithString("country", mcp.Description("Country used for trend analysis and budget")),
			mcp.WithNumber("bedrooms", mcp.Description("Number of bedrooms"), mcp.Required()),
			mcp.WithNumber("bathrooms", mcp.Description("Number of bathrooms"), mcp.Required()),
			mcp.WithNumber("stories", mcp.Description("Number of stories"), mcp.Required()),
			mcp.WithNumber("square_footage", mcp.Description("Total square footage"), mcp.Required()),
			mcp.WithArray("features", mcp.Description("Desired features"), mcp.WithStringItems(), mcp.Required()),
			mcp.WithString("color_palette", mcp.Description("Color palette, e.g. "+strings.Join(design.Palettes, ", "))),
			mcp.WithString("additional_requests", mcp.Description("Free-form requests")),
			mcp.WithBoolean("wait", mcp.Description("Wait for every image before returning (default true)")),
		),
		mcpDesignHouse(deps),
	)

	s.AddTool(
		mcp.NewTool("get_project",
			mcp.WithDescription("Return the latest snapshot of a project."),
			mcp.WithString("id", mcp.Description("Project ID"), mcp.Required()),
		),
		mcpGetProject(deps),
	)

	s.AddTool(
		mcp.NewTool("list_projects",
			mcp.WithDescription("List completed projects, newest first, without image data."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of projects (default 10)")),
		),
		mcpListProjects(deps),
	)

	s.AddTool(
		mcp.NewTool("recolor_room",
			mcp.WithDescription("Recolor one room's image. Accepts a palette name ("+strings.Join(recolor.Palettes(), ", ")+") or a free-form directive."),
			mcp.WithString("project_id", mcp.Description("Project ID"), mcp.Required()),
			mcp.WithNumber("index", mcp.Description("Room index within the project"), mcp.Required()),
			mcp.WithString("directive", mcp.Description("Palette name or color directive"), mcp.Required()),
		),
		mcpRecolorRoom(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_video",
			mcp.WithDescription("Render a fly-through video for a room with a ready image. Requires the premium capability."),
			mcp.WithString("project_id", mcp.Description("Project ID"), mcp.Required()),
			mcp.WithNumber("index", mcp.Description("Room index within the project"), mcp.Required()),
			mcp.WithBoolean("wait", mcp.Description("Wait for the video to finish (default false)")),
		),
		mcpGenerateVideo(deps),
	)

	s.AddTool(
		mcp.NewTool("capability_status",
			mcp.WithDescription("Report whether the premium video capability is available."),
		),
		mcpCapabilityStatus(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"dreamhouse://activity",
			"Recent Activity",
			mcp.WithResourceDescription("The most recent activity log entries"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceActivity(deps),
	)

	return s
}

func mcpDesignHouse(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		style, err := req.RequireString("style")
		if err != nil {
			return mcpError("style is required"), nil
		}
		prefs := design.Preferences{
			Style:              style,
			Country:            req.GetString("country", ""),
			Bedrooms:           req.GetInt("bedrooms", 0),
			Bathrooms:          req.GetInt("bathrooms", 0),
			Stories:            req.GetInt("stories", 0),
			SquareFootage:      req.GetInt("square_footage", 0),
			Features:           req.GetStringSlice("features", nil),
			ColorPalette:       req.GetString("color_palette", ""),
			AdditionalRequests: req.GetString("additional_requests", ""),
		}

		run, err := deps.Controller.Start(ctx, prefs)
		if err != nil {
			return mcpFailure(err), nil
		}
		if !req.GetBool("wait", true) {
			return mcpJSON(summarize(run.Skeleton))
		}
		p, err := run.Wait(ctx)
		if err != nil {
			return mcpFailure(err), nil
		}
		return mcpJSON(summarize(p))
	}
}

func mcpGetProject(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		p, err := deps.Projects.Get(id)
		if err != nil {
			return mcpFailure(err), nil
		}
		return mcpJSON(summarize(p))
	}
}

func mcpListProjects(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 50 {
			limit = 50
		}

		projects := deps.Projects.List()
		if len(projects) > limit {
			projects = projects[:limit]
		}
		out := make([]projectSummary, len(projects))
		for i, p := range projects {
			out[i] = summarize(p)
		}
		return mcpJSON(out)
	}
}

func mcpRecolorRoom(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("project_id")
		if err != nil {
			return mcpError("project_id is required"), nil
		}
		index, err := req.RequireInt("index")
		if err != nil {
			return mcpError("index is required"), nil
		}
		directive, err := req.RequireString("directive")
		if err != nil {
			return mcpError("directive is required"), nil
		}

		p, err := deps.Recolor.Recolor(ctx, id, index, directive)
		if err != nil {
			return mcpFailure(err), nil
		}
		return mcpJSON(summarize(p))
	}
}

func mcpGenerateVideo(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("project_id")
		if err != nil {
			return mcpError("project_id is required"), nil
		}
		index, err := req.RequireInt("index")
		if err != nil {
			return mcpError("index is required"), nil
		}

		attempt, err := deps.Videos.Start(ctx, id, index)
		if err != nil {
			return mcpFailure(err), nil
		}
		if !req.GetBool("wait", false) {
			return mcpText(fmt.Sprintf("Video started for room %d of project %s", index, id)), nil
		}
		p, err := attempt.Wait(ctx)
		if err != nil {
			return mcpFailure(err), nil
		}
		room, _ := p.Room(index)
		return mcpText(fmt.Sprintf("Video ready: %s", room.Video)), nil
	}
}

func mcpCapabilityStatus(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpJSON(capabilityState(deps.Gate))
	}
}

func mcpResourceActivity(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		entries, err := deps.Activity.Recent()
		if err != nil {
			return nil, fmt.Errorf("failed to get activity: %w", err)
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal activity: %w", err)
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

// projectSummary is a project without image payloads, which are too large
// for a tool result.
type projectSummary struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	TrendAnalysis string         `json:"trendAnalysis,omitempty"`
	Budget        *design.Budget `json:"budget,omitempty"`
	Rooms         []roomSummary  `json:"rooms"`
}

type roomSummary struct {
	Index        int               `json:"index"`
	Area         string            `json:"area"`
	Description  string            `json:"description"`
	CostEstimate string            `json:"costEstimate,omitempty"`
	ImageState   design.ImageState `json:"imageState"`
	ImageError   string            `json:"imageError,omitempty"`
	VideoState   design.VideoState `json:"videoState"`
	Video        string            `json:"video,omitempty"`
}

func summarize(p design.Project) projectSummary {
	s := projectSummary{ID: p.ID, Name: p.Name, TrendAnalysis: p.TrendAnalysis, Budget: p.Budget}
	s.Rooms = make([]roomSummary, len(p.Designs))
	for i, r := range p.Designs {
		s.Rooms[i] = roomSummary{
			Index:        i,
			Area:         r.Area,
			Description:  r.Description,
			CostEstimate: r.CostEstimate,
			ImageState:   r.ImageState,
			ImageError:   r.ImageError,
			VideoState:   r.VideoState,
			Video:        r.Video,
		}
	}
	return s
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpFailure(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, project.ErrNotFound):
		return mcpError(fmt.Sprintf("not found: %v", err))
	case generation.IsCredentialRejected(err):
		return mcpError(fmt.Sprintf("credential rejected: %v", err))
	}
	return mcpError(err.Error())
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
