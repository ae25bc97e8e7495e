package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kalambet/dreamhouse/internal/api"
	"github.com/kalambet/dreamhouse/internal/brief"
	"github.com/kalambet/dreamhouse/internal/config"
	"github.com/kalambet/dreamhouse/internal/design"
	"github.com/kalambet/dreamhouse/internal/recolor"
)

// --- design ---

var designCmd = &cobra.Command{
	Use:   "design",
	Short: "Design a house from your preferences",
	Long: `Design a house from your preferences.

Styles:   ` + strings.Join(design.Styles, ", ") + `
Palettes: ` + strings.Join(design.Palettes, ", ") + `
Features: ` + strings.Join(design.Features, ", ") + `

Examples:
  dreamhouse design --style Modern --country Canada --bedrooms 3 --bathrooms 2 --stories 1 --sqft 1800
  dreamhouse design --style Farmhouse --feature Fireplace --feature "Home Office" --brief ./brief.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prefs, err := preferencesFromFlags(cmd)
		if err != nil {
			return err
		}
		if path, _ := cmd.Flags().GetString("brief"); path != "" {
			text, err := brief.ReadPDF(path)
			if err != nil {
				return err
			}
			prefs = brief.Merge(prefs, text)
			printStep("Imported design brief from %s", path)
		}
		wait, _ := cmd.Flags().GetBool("wait")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := submitDesign(cmd.Context(), client, prefs, wait)
		if err != nil {
			return err
		}

		if !wait {
			printSuccess("Started %s (%s)", resp.Project.Name, resp.Project.ID)
			return nil
		}
		printProject(os.Stdout, resp)
		return nil
	},
}

func init() {
	f := designCmd.Flags()
	f.String("style", "", "architectural style")
	f.String("country", "", "country for trends and budget")
	f.Int("bedrooms", 3, "number of bedrooms")
	f.Int("bathrooms", 2, "number of bathrooms")
	f.Int("stories", 1, "number of stories")
	f.Int("sqft", 2000, "total square footage")
	f.StringArray("feature", nil, "desired feature (repeatable)")
	f.String("palette", "", "color palette")
	f.String("requests", "", "additional free-form requests")
	f.String("brief", "", "PDF design brief to merge into the requests")
	f.Bool("wait", true, "wait for every image before returning")
}

func preferencesFromFlags(cmd *cobra.Command) (design.Preferences, error) {
	f := cmd.Flags()
	var p design.Preferences
	p.Style, _ = f.GetString("style")
	p.Country, _ = f.GetString("country")
	p.Bedrooms, _ = f.GetInt("bedrooms")
	p.Bathrooms, _ = f.GetInt("bathrooms")
	p.Stories, _ = f.GetInt("stories")
	p.SquareFootage, _ = f.GetInt("sqft")
	p.Features, _ = f.GetStringArray("feature")
	p.ColorPalette, _ = f.GetString("palette")
	p.AdditionalRequests, _ = f.GetString("requests")
	if strings.TrimSpace(p.Style) == "" {
		return p, fmt.Errorf("--style is required")
	}
	return p, nil
}

func submitDesign(ctx context.Context, client *apiClient, prefs design.Preferences, wait bool) (api.ProjectResponse, error) {
	path := "/projects"
	if wait {
		printStep("Designing %s, this can take a few minutes...", prefs.ProjectName())
		path += "?wait=true"
	}
	resp, err := client.post(ctx, path, prefs)
	if err != nil {
		return api.ProjectResponse{}, err
	}
	var out api.ProjectResponse
	if err := decodeJSON(resp, &out); err != nil {
		return api.ProjectResponse{}, err
	}
	return out, nil
}

func printProject(w io.Writer, resp api.ProjectResponse) {
	p := resp.Project
	state := "in progress"
	if resp.Committed {
		state = "complete"
	}
	fmt.Fprintf(w, "%s  %s  (%s)\n", colorize(colorBold, p.Name), colorize(colorCyan, p.ID), state)
	if p.Budget != nil {
		fmt.Fprintf(w, "  Budget: %s\n", p.Budget.OverallEstimate)
	}
	if resp.Progress != nil {
		fmt.Fprintf(w, "  Progress: %d/%d %s\n", resp.Progress.Completed, resp.Progress.Total, resp.Progress.Message)
	}
	for i, r := range p.Designs {
		line := fmt.Sprintf("  [%d] %-16s image:%s", i, r.Area, r.ImageState)
		if r.VideoState != design.VideoNone {
			line += fmt.Sprintf(" video:%s", r.VideoState)
		}
		if resp.Recoloring != nil && *resp.Recoloring == i {
			line += " (recoloring)"
		}
		fmt.Fprintln(w, line)
		if r.ImageError != "" {
			fmt.Fprintf(w, "      %s\n", colorize(colorRed, r.ImageError))
		}
		if r.Video != "" {
			fmt.Fprintf(w, "      %s\n", r.Video)
		}
		if r.VideoError != "" {
			fmt.Fprintf(w, "      %s\n", colorize(colorRed, r.VideoError))
		}
	}
}

// --- projects ---

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List, show or delete projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List completed projects, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/projects?limit=%d", limit))
		if err != nil {
			return err
		}
		var projects []design.Project
		if err := decodeJSON(resp, &projects); err != nil {
			return err
		}

		if len(projects) == 0 {
			fmt.Println("No projects found.")
			return nil
		}
		for _, p := range projects {
			ready, failed := p.Counts()
			fmt.Printf("%s  %s  %s  %d ready, %d failed\n",
				colorize(colorCyan, p.ID),
				p.CreatedAt.Local().Format(time.DateTime),
				p.Name,
				ready, failed,
			)
		}
		return nil
	},
}

var projectsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := fetchProject(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		printProject(os.Stdout, resp)
		return nil
	},
}

var projectsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a project and cancel its videos",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/projects/"+args[0])
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted project %s", args[0])
		return nil
	},
}

func init() {
	projectsListCmd.Flags().Int("limit", 20, "maximum number of projects to list")
	projectsShowCmd.Flags().Bool("json", false, "print the full project as JSON")
	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsShowCmd)
	projectsCmd.AddCommand(projectsDeleteCmd)
}

func fetchProject(ctx context.Context, client *apiClient, id string) (api.ProjectResponse, error) {
	resp, err := client.get(ctx, "/projects/"+id)
	if err != nil {
		return api.ProjectResponse{}, err
	}
	var out api.ProjectResponse
	if err := decodeJSON(resp, &out); err != nil {
		return api.ProjectResponse{}, err
	}
	return out, nil
}

// --- video ---

var videoPollInterval = 5 * time.Second

var videoCmd = &cobra.Command{
	Use:   "video <project> <index>",
	Short: "Render a fly-through video for one room",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		wait, _ := cmd.Flags().GetBool("wait")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), fmt.Sprintf("/projects/%s/rooms/%d/video", args[0], index), nil)
		if err != nil {
			return err
		}
		var started api.ProjectResponse
		if err := decodeJSON(resp, &started); err != nil {
			return err
		}
		printStep("Video started for %s", started.Project.Designs[index].Area)
		if !wait {
			return nil
		}

		room, err := waitForVideo(cmd.Context(), client, args[0], index)
		if err != nil {
			return err
		}
		if room.VideoState == design.VideoFailed {
			return fmt.Errorf("video failed: %s", room.VideoError)
		}
		printSuccess("Video ready: %s", room.Video)
		return nil
	},
}

func init() {
	videoCmd.Flags().Bool("wait", true, "wait for the video to finish")
}

func waitForVideo(ctx context.Context, client *apiClient, id string, index int) (design.RoomDesign, error) {
	ticker := time.NewTicker(videoPollInterval)
	defer ticker.Stop()
	for {
		resp, err := fetchProject(ctx, client, id)
		if err != nil {
			return design.RoomDesign{}, err
		}
		room, err := resp.Project.Room(index)
		if err != nil {
			return design.RoomDesign{}, err
		}
		if room.VideoState != design.VideoPending {
			return room, nil
		}
		select {
		case <-ctx.Done():
			return design.RoomDesign{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid room index %q", s)
	}
	return i, nil
}

// --- recolor ---

var recolorCmd = &cobra.Command{
	Use:   "recolor <project> <index> <palette|directive>",
	Short: "Recolor one room's image",
	Long: `Recolor one room's image with a named palette or a free-form directive.

Palettes: ` + strings.Join(recolor.Palettes(), ", "),
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		directive := strings.Join(args[2:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), fmt.Sprintf("/projects/%s/rooms/%d/recolor", args[0], index), api.RecolorRequest{Directive: directive})
		if err != nil {
			return err
		}
		var out api.ProjectResponse
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Recolored %s", out.Project.Designs[index].Area)
		return nil
	},
}

// --- grant ---

var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Select the API key used for premium video generation",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := readSecret(os.Stdin, "Video API key: ")
		if err != nil {
			return err
		}
		if key == "" {
			return fmt.Errorf("no key entered")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/capability/grant", api.GrantRequest{Key: key})
		if err != nil {
			return err
		}
		var state struct {
			State string `json:"state"`
		}
		if err := decodeJSON(resp, &state); err != nil {
			return err
		}
		printSuccess("Video capability %s", state.State)
		return nil
	},
}

// readSecret reads one line without echo when f is a terminal.
func readSecret(f *os.File, prompt string) (string, error) {
	fd := int(f.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// --- activity ---

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show recent activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/activity?limit=%d", limit))
		if err != nil {
			return err
		}
		var entries []struct {
			Time    time.Time `json:"time"`
			Message string    `json:"message"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No activity yet.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %s\n", colorize(colorCyan, e.Time.Local().Format("15:04:05")), e.Message)
		}
		return nil
	},
}

func init() {
	activityCmd.Flags().Int("limit", 20, "maximum number of entries")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadSettings()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
