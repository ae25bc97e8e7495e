package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kalambet/dreamhouse/internal/design"
	"github.com/kalambet/dreamhouse/internal/generation"
	"github.com/kalambet/dreamhouse/internal/media"
)

const (
	aspectRatio      = "16:9"
	defaultImageMIME = "image/png"
)

// SynthesizeDescriptions asks the text model for the per-area descriptions,
// trend analysis and budget in one structured call.
func (c *Client) SynthesizeDescriptions(ctx context.Context, prefs design.Preferences) (generation.Descriptions, error) {
	prompt, err := c.composer.DescriptionPrompt(prefs)
	if err != nil {
		return generation.Descriptions{}, err
	}

	req := generateContentRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   descriptionSchema,
		},
	}
	var resp generateContentResponse
	if err := c.call(ctx, http.MethodPost, "models/"+c.models.Text+":generateContent", c.apiKey, req, &resp); err != nil {
		return generation.Descriptions{}, fmt.Errorf("generating descriptions: %w", err)
	}

	text := firstText(resp)
	if text == "" {
		return generation.Descriptions{}, fmt.Errorf("%w: empty description response%s", generation.ErrNoArtifact, blockReason(resp))
	}
	var payload descriptionPayload
	if err := json.Unmarshal([]byte(stripFences(text)), &payload); err != nil {
		return generation.Descriptions{}, fmt.Errorf("parsing description payload: %w", err)
	}
	if len(payload.Areas) == 0 {
		return generation.Descriptions{}, fmt.Errorf("%w: description payload has no areas", generation.ErrNoArtifact)
	}

	out := generation.Descriptions{TrendAnalysis: strings.TrimSpace(payload.TrendAnalysis)}
	for _, a := range payload.Areas {
		out.Areas = append(out.Areas, generation.AreaDescription{
			Area:         strings.TrimSpace(a.Area),
			Description:  strings.TrimSpace(a.Description),
			CostEstimate: strings.TrimSpace(a.BudgetEstimate),
		})
	}
	if payload.Budget != nil && (payload.Budget.OverallEstimate != "" || payload.Budget.Summary != "") {
		out.Budget = &design.Budget{
			OverallEstimate: payload.Budget.OverallEstimate,
			Summary:         payload.Budget.Summary,
		}
	}
	c.logger.Debug("descriptions generated", "areas", len(out.Areas), "model", c.models.Text)
	return out, nil
}

// SynthesizeImage renders one 16:9 image for an area description.
func (c *Client) SynthesizeImage(ctx context.Context, description string, prefs design.Preferences) (media.Image, error) {
	req := predictRequest{
		Instances:  []predictInstance{{Prompt: c.composer.ImagePrompt(description, prefs)}},
		Parameters: predictParameters{SampleCount: 1, AspectRatio: aspectRatio},
	}
	var resp predictResponse
	if err := c.call(ctx, http.MethodPost, "models/"+c.models.Image+":predict", c.apiKey, req, &resp); err != nil {
		return media.Image{}, fmt.Errorf("generating image: %w", err)
	}
	if len(resp.Predictions) == 0 || resp.Predictions[0].BytesBase64Encoded == "" {
		return media.Image{}, fmt.Errorf("%w: no image was generated", generation.ErrNoArtifact)
	}
	return decodeImage(resp.Predictions[0].BytesBase64Encoded, resp.Predictions[0].MIMEType)
}

// StartVideo submits a long-running video job seeded with the room's image.
func (c *Client) StartVideo(ctx context.Context, description string, prefs design.Preferences, source media.Image) (generation.Operation, error) {
	if source.Empty() {
		return generation.Operation{}, errors.New("source image is empty")
	}
	req := predictRequest{
		Instances: []predictInstance{{
			Prompt: c.composer.VideoPrompt(description, prefs),
			Image: &imageBytes{
				BytesBase64Encoded: base64.StdEncoding.EncodeToString(source.Data),
				MIMEType:           source.MIMEType,
			},
		}},
		Parameters: predictParameters{AspectRatio: aspectRatio},
	}
	var op operation
	if err := c.call(ctx, http.MethodPost, "models/"+c.models.Video+":predictLongRunning", c.videoKey, req, &op); err != nil {
		return generation.Operation{}, fmt.Errorf("starting video: %w", err)
	}
	if op.Name == "" {
		return generation.Operation{}, fmt.Errorf("%w: operation has no name", generation.ErrNoArtifact)
	}
	c.logger.Debug("video operation started", "operation", op.Name)
	return generation.Operation{Name: op.Name}, nil
}

// PollVideo reads the current state of a video operation.
func (c *Client) PollVideo(ctx context.Context, op generation.Operation) (generation.OperationStatus, error) {
	var got operation
	err := c.call(ctx, http.MethodGet, op.Name, c.videoKey, nil, &got)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.status == http.StatusNotFound {
			return generation.OperationStatus{}, fmt.Errorf("%w: %s", generation.ErrOperationNotFound, op.Name)
		}
		return generation.OperationStatus{}, fmt.Errorf("polling video: %w", err)
	}
	if !got.Done {
		return generation.OperationStatus{}, nil
	}
	if got.Error != nil {
		return generation.OperationStatus{Done: true, Err: operationError(got.Error)}, nil
	}
	if got.Response == nil || len(got.Response.GenerateVideoResponse.GeneratedSamples) == 0 ||
		got.Response.GenerateVideoResponse.GeneratedSamples[0].Video.URI == "" {
		reason := "operation finished without a video"
		if got.Response != nil && len(got.Response.GenerateVideoResponse.RAIMediaFilteredReasons) > 0 {
			reason = strings.Join(got.Response.GenerateVideoResponse.RAIMediaFilteredReasons, "; ")
		}
		return generation.OperationStatus{Done: true, Err: fmt.Errorf("%w: %s", generation.ErrNoArtifact, reason)}, nil
	}
	return generation.OperationStatus{
		Done:     true,
		VideoRef: got.Response.GenerateVideoResponse.GeneratedSamples[0].Video.URI,
	}, nil
}

// FetchVideo downloads a finished video. The caller closes the reader.
func (c *Client) FetchVideo(ctx context.Context, ref string) (io.ReadCloser, error) {
	rc, err := c.download(ctx, ref, c.videoKey)
	if err != nil {
		return nil, fmt.Errorf("fetching video: %w", err)
	}
	return rc, nil
}

// RecolorImage asks the image-edit model to repaint source with directive.
func (c *Client) RecolorImage(ctx context.Context, source media.Image, directive string) (media.Image, error) {
	req := generateContentRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &blob{MIMEType: source.MIMEType, Data: base64.StdEncoding.EncodeToString(source.Data)}},
				{Text: c.composer.RecolorPrompt(directive)},
			},
		}},
		GenerationConfig: &generationConfig{ResponseModalities: []string{"TEXT", "IMAGE"}},
	}
	var resp generateContentResponse
	if err := c.call(ctx, http.MethodPost, "models/"+c.models.Edit+":generateContent", c.apiKey, req, &resp); err != nil {
		return media.Image{}, fmt.Errorf("recoloring image: %w", err)
	}
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				return decodeImage(p.InlineData.Data, p.InlineData.MIMEType)
			}
		}
	}
	return media.Image{}, fmt.Errorf("%w: edit returned no image%s", generation.ErrNoArtifact, blockReason(resp))
}

func decodeImage(b64, mime string) (media.Image, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return media.Image{}, fmt.Errorf("decoding image bytes: %w", err)
	}
	if mime == "" {
		mime = defaultImageMIME
	}
	return media.Image{MIMEType: mime, Data: data}, nil
}

// operationError converts a finished operation's status into an error,
// keeping credential and not-found causes recognizable.
func operationError(st *rpcStatus) error {
	switch st.Code {
	case 7, 16: // PERMISSION_DENIED, UNAUTHENTICATED
		return fmt.Errorf("%w: %s", generation.ErrCredentialRejected, st.Message)
	case 5: // NOT_FOUND
		return fmt.Errorf("%w: %s", generation.ErrOperationNotFound, st.Message)
	}
	return fmt.Errorf("video operation failed (code %d): %s", st.Code, st.Message)
}

func firstText(resp generateContentResponse) string {
	for _, cand := range resp.Candidates {
		var sb strings.Builder
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			return s
		}
	}
	return ""
}

func blockReason(resp generateContentResponse) string {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return " (blocked: " + resp.PromptFeedback.BlockReason + ")"
	}
	return ""
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
