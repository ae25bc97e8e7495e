// Package media encodes generated images as data URIs and stores downloaded
// videos where the API can serve them.
package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDataURI is returned by ParseDataURI for anything that is not a
// base64 data URI with a media type.
var ErrInvalidDataURI = errors.New("invalid data URI")

// Image is a binary image payload with its media type.
type Image struct {
	MIMEType string
	Data     []byte
}

// DataURI encodes img as "data:<mime>;base64,<payload>".
func (img Image) DataURI() string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Empty reports whether img carries no payload.
func (img Image) Empty() bool {
	return len(img.Data) == 0
}

// ParseDataURI decodes a URI produced by DataURI. The round trip is exact:
// ParseDataURI(img.DataURI()) returns img's media type and bytes.
func ParseDataURI(s string) (Image, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return Image{}, fmt.Errorf("%w: missing data: scheme", ErrInvalidDataURI)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Image{}, fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}
	mime, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return Image{}, fmt.Errorf("%w: payload is not base64", ErrInvalidDataURI)
	}
	if mime == "" || !strings.Contains(mime, "/") {
		return Image{}, fmt.Errorf("%w: bad media type %q", ErrInvalidDataURI, mime)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return Image{MIMEType: mime, Data: data}, nil
}
