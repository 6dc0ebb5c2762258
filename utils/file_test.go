package utils

import (
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"photo.jpg":            "photo.jpg",
		"../../etc/passwd":     "passwd",
		`C:\Users\me\scan.png`: "scan.png",
		"what?.webp":           "what_.webp",
		"line\nbreak.jpg":      "linebreak.jpg",
		"":                     "",
	}
	for in, want := range cases {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetectMimeType(t *testing.T) {
	if got := DetectMimeType("IMG_0001.HEIC"); got != "image/heic" {
		t.Errorf("expected image/heic, got %s", got)
	}
	if got := DetectMimeType("notes.txt"); got != "application/octet-stream" {
		t.Errorf("expected octet-stream, got %s", got)
	}
	if !IsImage("a.png") || IsImage("a.pdf") {
		t.Error("IsImage misclassified")
	}
}

func TestAttachmentHeader(t *testing.T) {
	h := AttachmentHeader("compiled-document.pdf")
	if !strings.HasPrefix(h, "attachment") || !strings.Contains(h, "compiled-document.pdf") {
		t.Errorf("unexpected header %q", h)
	}
	if h := AttachmentHeader(""); !strings.Contains(h, "download") {
		t.Errorf("expected fallback name, got %q", h)
	}
}
