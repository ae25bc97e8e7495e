// Package design holds the value types a generation run produces: the submitted
// preferences, the per-area room designs and the project that groups them.
package design

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPreferences is wrapped by every error returned from Validate.
var ErrInvalidPreferences = errors.New("invalid preferences")

// Known vocabularies offered by the design form. Validate does not restrict
// values to these lists; callers may submit free-form styles and palettes.
var (
	Styles = []string{
		"Modern", "Contemporary", "Minimalist", "Industrial",
		"Farmhouse", "Victorian", "Coastal",
	}
	Palettes = []string{
		"Warm Neutrals", "Cool Tones", "Earthy & Organic",
		"Monochromatic", "Bold & Vibrant",
	}
	Features = []string{
		"Open Floor Plan", "Swimming Pool", "Home Office", "Gourmet Kitchen",
		"Fireplace", "Balcony", "Smart Home", "Home Gym", "Walk-in Closet",
	}
)

// Preferences is one submission of the design form. A Preferences value is
// never modified after submission; use Clone before handing it to code that
// might retain it.
type Preferences struct {
	Style              string   `json:"style"`
	Country            string   `json:"country"`
	Bedrooms           int      `json:"bedrooms"`
	Bathrooms          int      `json:"bathrooms"`
	Stories            int      `json:"stories"`
	SquareFootage      int      `json:"squareFootage"`
	Features           []string `json:"features,omitempty"`
	ColorPalette       string   `json:"colorPalette"`
	AdditionalRequests string   `json:"additionalRequests,omitempty"`
}

// Validate checks the structural rules: a style is present, counts and area
// are positive and the feature set has no duplicates.
func (p Preferences) Validate() error {
	if strings.TrimSpace(p.Style) == "" {
		return fmt.Errorf("%w: style is required", ErrInvalidPreferences)
	}
	positives := []struct {
		name string
		val  int
	}{
		{"bedrooms", p.Bedrooms},
		{"bathrooms", p.Bathrooms},
		{"stories", p.Stories},
		{"squareFootage", p.SquareFootage},
	}
	for _, f := range positives {
		if f.val <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidPreferences, f.name, f.val)
		}
	}
	seen := make(map[string]struct{}, len(p.Features))
	for _, f := range p.Features {
		key := strings.ToLower(strings.TrimSpace(f))
		if key == "" {
			return fmt.Errorf("%w: empty feature", ErrInvalidPreferences)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate feature %q", ErrInvalidPreferences, f)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Clone returns a copy that shares no slices with p.
func (p Preferences) Clone() Preferences {
	if p.Features != nil {
		p.Features = append([]string(nil), p.Features...)
	}
	return p
}

// ProjectName is the display name given to projects built from p.
func (p Preferences) ProjectName() string {
	return fmt.Sprintf("My %s House", strings.TrimSpace(p.Style))
}
