package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/dreamhouse/internal/composer"
	"github.com/kalambet/dreamhouse/internal/design"
	"github.com/kalambet/dreamhouse/internal/generation"
)

// --- helpers ---

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func designArgs() map[string]interface{} {
	return map[string]interface{}{
		"style":          "Modern",
		"country":        "Canada",
		"bedrooms":       float64(3),
		"bathrooms":      float64(2),
		"stories":        float64(1),
		"square_footage": float64(1800),
		"features":       []interface{}{"Home Office"},
	}
}

func callTool(t *testing.T, env *testEnv, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	result, err := handler(context.Background(), makeCallToolRequest(name, args))
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", name, err)
	}
	return result
}

// --- tests ---

func TestMCPTool_DesignHouse(t *testing.T) {
	env := newTestEnv(t, &mockService{})

	result := callTool(t, env, mcpDesignHouse(env.deps), "design_house", designArgs())
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var summary projectSummary
	if err := json.Unmarshal([]byte(toolText(t, result)), &summary); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if summary.Name != "My Modern House" {
		t.Errorf("Name = %q", summary.Name)
	}
	if len(summary.Rooms) != len(composer.DefaultAreas) {
		t.Fatalf("rooms = %d", len(summary.Rooms))
	}
	for _, r := range summary.Rooms {
		if r.ImageState != design.ImageReady {
			t.Errorf("%s ImageState = %q", r.Area, r.ImageState)
		}
	}
	if strings.Contains(toolText(t, result), "data:image") {
		t.Error("summary should not carry image data")
	}
	if !env.deps.Projects.Committed(summary.ID) {
		t.Error("project should be committed")
	}
}

func TestMCPTool_DesignHouse_Invalid(t *testing.T) {
	env := newTestEnv(t, &mockService{})

	args := designArgs()
	args["bedrooms"] = float64(0)
	result := callTool(t, env, mcpDesignHouse(env.deps), "design_house", args)
	if !result.IsError {
		t.Fatal("expected error result for invalid preferences")
	}

	result = callTool(t, env, mcpDesignHouse(env.deps), "design_house", map[string]interface{}{})
	if !result.IsError || toolText(t, result) != "style is required" {
		t.Errorf("missing style result = %+v", result)
	}
}

func TestMCPTool_DesignHouse_CredentialRejected(t *testing.T) {
	env := newTestEnv(t, &mockService{
		descriptionsFn: func(context.Context, design.Preferences) (generation.Descriptions, error) {
			return generation.Descriptions{}, fmt.Errorf("status 401: %w", generation.ErrCredentialRejected)
		},
	})

	result := callTool(t, env, mcpDesignHouse(env.deps), "design_house", designArgs())
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if !strings.HasPrefix(toolText(t, result), "credential rejected") {
		t.Errorf("text = %q", toolText(t, result))
	}
}

func TestMCPTool_GetAndListProjects(t *testing.T) {
	env := newTestEnv(t, &mockService{})
	first := env.submit(t)
	second := env.submit(t)

	result := callTool(t, env, mcpGetProject(env.deps), "get_project", map[string]interface{}{"id": first.ID})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	var got projectSummary
	json.Unmarshal([]byte(toolText(t, result)), &got)
	if got.ID != first.ID {
		t.Errorf("ID = %q, want %q", got.ID, first.ID)
	}

	result = callTool(t, env, mcpGetProject(env.deps), "get_project", map[string]interface{}{"id": "nope"})
	if !result.IsError || !strings.HasPrefix(toolText(t, result), "not found") {
		t.Errorf("unknown project result = %q", toolText(t, result))
	}

	result = callTool(t, env, mcpListProjects(env.deps), "list_projects", map[string]interface{}{"limit": float64(1)})
	var list []projectSummary
	json.Unmarshal([]byte(toolText(t, result)), &list)
	if len(list) != 1 || list[0].ID != second.ID {
		t.Errorf("list = %+v, want newest project only", list)
	}
}

func TestMCPTool_RecolorRoom(t *testing.T) {
	env := newTestEnv(t, &mockService{})
	p := env.submit(t)

	result := callTool(t, env, mcpRecolorRoom(env.deps), "recolor_room", map[string]interface{}{
		"project_id": p.ID,
		"index":      float64(1),
		"directive":  "jewel-tones",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	got, _ := env.deps.Projects.Get(p.ID)
	if got.Designs[1].Image == p.Designs[1].Image {
		t.Error("image should have been replaced")
	}
	if got.Designs[0].Image != p.Designs[0].Image {
		t.Error("other rooms should be untouched")
	}

	result = callTool(t, env, mcpRecolorRoom(env.deps), "recolor_room", map[string]interface{}{
		"project_id": p.ID,
		"directive":  "navy",
	})
	if !result.IsError {
		t.Error("expected error without index")
	}
}

func TestMCPTool_GenerateVideo(t *testing.T) {
	env := newTestEnv(t, &mockService{})
	p := env.submit(t)
	args := map[string]interface{}{"project_id": p.ID, "index": float64(0), "wait": true}

	result := callTool(t, env, mcpGenerateVideo(env.deps), "generate_video", args)
	if !result.IsError {
		t.Fatal("expected error while capability is unavailable")
	}

	env.secrets.Set("video", "k")
	if _, err := env.deps.Gate.Probe(context.Background()); err != nil {
		t.Fatal(err)
	}

	result = callTool(t, env, mcpGenerateVideo(env.deps), "generate_video", args)
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	want := "Video ready: /media/projects/" + p.ID + "/rooms/0/video.mp4"
	if toolText(t, result) != want {
		t.Errorf("text = %q, want %q", toolText(t, result), want)
	}
}

func TestMCPTool_CapabilityStatus(t *testing.T) {
	env := newTestEnv(t, &mockService{})
	result := callTool(t, env, mcpCapabilityStatus(env.deps), "capability_status", nil)

	var state capabilityResponse
	json.Unmarshal([]byte(toolText(t, result)), &state)
	if state.Available || state.State != "unknown" {
		t.Errorf("state = %+v", state)
	}
}

func TestMCPResource_Activity(t *testing.T) {
	env := newTestEnv(t, &mockService{})
	env.submit(t)

	contents, err := mcpResourceActivity(env.deps)(context.Background(), makeReadResourceRequest("dreamhouse://activity"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if !strings.Contains(tc.Text, "Started designing My Farmhouse House") {
		t.Errorf("activity = %s", tc.Text)
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	env := newTestEnv(t, &mockService{})
	p := env.submit(t)

	getHandler := mcpGetProject(env.deps)
	listHandler := mcpListProjects(env.deps)

	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			result, err := getHandler(context.Background(), makeCallToolRequest("get_project", map[string]interface{}{"id": p.ID}))
			if err != nil {
				errs <- err
			} else if result.IsError {
				errs <- fmt.Errorf("get_project returned an error result")
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := listHandler(context.Background(), makeCallToolRequest("list_projects", nil)); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}
}

func TestNewMCPServer(t *testing.T) {
	env := newTestEnv(t, &mockService{})
	if s := NewMCPServer(env.deps); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
