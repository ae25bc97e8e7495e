// Package composer builds the prompts sent to the generative service for each
// pipeline stage.
package composer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/dreamhouse/internal/design"
)

// DefaultAreas are the areas every project describes, in display order.
var DefaultAreas = []string{
	"Exterior",
	"Foyer",
	"Living Room",
	"Kitchen",
	"Dining Room",
	"Master Bedroom",
	"Master Bathroom",
}

const descriptionPromptTemplate = `You are a world-class architect and interior designer creating a concept for a client's dream home.
Based on the JSON preferences below, write a detailed and inspiring description for each of these areas, in this order: %s.
For each area describe the architectural style, materials, color palette, furniture, lighting and overall ambiance, and give a rough budget estimate for building and furnishing it.
Keep the design cohesive and reflect every client preference.
Also write a short analysis of current residential design trends in %s relevant to this home, and an overall budget estimate with a one-paragraph summary.
Respond with JSON only.

Client preferences:
%s`

const imagePromptTemplate = `Create a photorealistic, ultra-high-quality architectural visualization.
Style: %s.
Color palette: %s.
Description: %s.
The image should be bright and inviting, like a professional architectural rendering from a top design magazine, with cinematic lighting and fine detail. Landscape 16:9 framing.`

const videoPromptTemplate = `A slow, smooth cinematic fly-through of this %s home, starting from the provided image.
%s
Steady camera, natural light, no people, no text overlays.`

const recolorPromptTemplate = `Recolor this architectural image using a palette of %s.
Keep the geometry, furniture, materials, lighting and camera angle exactly as they are; change only colors and finishes.`

// Composer holds the area list used for description prompts.
type Composer struct {
	Areas []string
}

// New returns a composer for areas, or DefaultAreas when areas is empty.
func New(areas []string) *Composer {
	if len(areas) == 0 {
		areas = DefaultAreas
	}
	return &Composer{Areas: append([]string(nil), areas...)}
}

// DescriptionPrompt builds the stage-one prompt.
func (c *Composer) DescriptionPrompt(p design.Preferences) (string, error) {
	prefs, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshalling preferences: %w", err)
	}
	country := strings.TrimSpace(p.Country)
	if country == "" {
		country = "the client's region"
	}
	return fmt.Sprintf(descriptionPromptTemplate, strings.Join(c.Areas, ", "), country, prefs), nil
}

// ImagePrompt builds the prompt for one area image.
func (c *Composer) ImagePrompt(description string, p design.Preferences) string {
	return fmt.Sprintf(imagePromptTemplate, p.Style, p.ColorPalette, strings.TrimSpace(description))
}

// VideoPrompt builds the prompt for a fly-through of one area.
func (c *Composer) VideoPrompt(description string, p design.Preferences) string {
	return fmt.Sprintf(videoPromptTemplate, strings.ToLower(p.Style), strings.TrimSpace(description))
}

// RecolorPrompt builds the instruction sent with the source image.
func (c *Composer) RecolorPrompt(directive string) string {
	return fmt.Sprintf(recolorPromptTemplate, strings.TrimSpace(directive))
}
