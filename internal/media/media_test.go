package media

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDataURIRoundTrip(t *testing.T) {
	payloads := []Image{
		{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G', 0, 0xff, 0x10}},
		{MIMEType: "image/jpeg", Data: bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 1000)},
		{MIMEType: "image/webp", Data: []byte("x")},
	}
	for _, img := range payloads {
		uri := img.DataURI()
		if !strings.HasPrefix(uri, "data:"+img.MIMEType+";base64,") {
			t.Errorf("DataURI prefix = %q", uri[:min(len(uri), 40)])
		}
		got, err := ParseDataURI(uri)
		if err != nil {
			t.Fatalf("ParseDataURI: %v", err)
		}
		if got.MIMEType != img.MIMEType {
			t.Errorf("MIMEType = %q, want %q", got.MIMEType, img.MIMEType)
		}
		if !bytes.Equal(got.Data, img.Data) {
			t.Errorf("payload for %s differs after round trip", img.MIMEType)
		}
	}
}

func TestParseDataURI_Invalid(t *testing.T) {
	for _, s := range []string{
		"",
		"http://example.com/a.png",
		"data:image/png;base64",
		"data:image/png,AAAA",
		"data:;base64,AAAA",
		"data:image/png;base64,@@@",
	} {
		if _, err := ParseDataURI(s); !errors.Is(err, ErrInvalidDataURI) {
			t.Errorf("ParseDataURI(%q) = %v, want ErrInvalidDataURI", s, err)
		}
	}
}

func TestFileStorePut(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, "http://localhost:4100/media/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	key := VideoKey("p1", 3)
	url, err := s.Put(context.Background(), key, strings.NewReader("mp4 bytes"), -1, "video/mp4")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "http://localhost:4100/media/projects/p1/rooms/3/video.mp4" {
		t.Errorf("url = %q", url)
	}
	got, err := os.ReadFile(filepath.Join(dir, "projects", "p1", "rooms", "3", "video.mp4"))
	if err != nil {
		t.Fatalf("reading stored file: %v", err)
	}
	if string(got) != "mp4 bytes" {
		t.Errorf("stored = %q", got)
	}
}

func TestFileStorePut_StaysInDir(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "media"), "/media")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	url, err := s.Put(context.Background(), "../../escape.mp4", strings.NewReader("x"), 1, "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "/media/escape.mp4" {
		t.Errorf("url = %q, want /media/escape.mp4", url)
	}
	if _, err := os.Stat(filepath.Join(dir, "media", "escape.mp4")); err != nil {
		t.Errorf("file not written inside store dir: %v", err)
	}
}

func TestFileStorePut_CanceledContext(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), "/media")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Put(ctx, "a.mp4", strings.NewReader("x"), 1, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("Put with canceled ctx = %v, want context.Canceled", err)
	}
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"a/b.mp4":  "video/mp4",
		"a/b.PNG":  "image/png",
		"a/b.jpeg": "image/jpeg",
		"a/b":      "application/octet-stream",
	}
	for key, want := range cases {
		if got := ContentTypeFor(key); got != want {
			t.Errorf("ContentTypeFor(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestNewMinIOStore_RequiresEndpoint(t *testing.T) {
	if _, err := NewMinIOStore(MinIOConfig{Bucket: "b"}); err == nil {
		t.Error("expected error without endpoint")
	}
	if _, err := NewMinIOStore(MinIOConfig{Endpoint: "localhost:9000"}); err == nil {
		t.Error("expected error without bucket")
	}
}
