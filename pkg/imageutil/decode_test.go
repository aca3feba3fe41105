package imageutil

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodeTestImage(t *testing.T, format string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	default:
		err = jpeg.Encode(&buf, img, nil)
	}
	if err != nil {
		t.Fatalf("encode %s: %v", format, err)
	}
	return buf.Bytes()
}

func TestDecodeJPEGAndPNG(t *testing.T) {
	cases := []struct {
		format string
		mime   string
		ext    string
	}{
		{"jpeg", "image/jpeg", ".jpg"},
		{"png", "image/png", ".png"},
	}
	for _, tc := range cases {
		data := encodeTestImage(t, tc.format)
		d, err := Decode(data)
		if err != nil {
			t.Fatalf("%s: decode: %v", tc.format, err)
		}
		if d.MIMEType != tc.mime || Extension(data) != tc.ext {
			t.Fatalf("%s: unexpected type %q %q", tc.format, d.MIMEType, Extension(data))
		}
		if d.Format != tc.format {
			t.Fatalf("format = %q, want %q", d.Format, tc.format)
		}
		if d.Width != 4 || d.Height != 3 {
			t.Fatalf("%s: unexpected bounds %dx%d", tc.format, d.Width, d.Height)
		}
	}
}

func TestDecodeRejectsNonImages(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("hello, not an image"), []byte("%PDF-1.4\n")} {
		if _, err := Decode(data); !errors.Is(err, ErrUnsupportedImage) {
			t.Fatalf("expected ErrUnsupportedImage, got %v", err)
		}
	}
}

func TestDecodeRejectsTruncatedImage(t *testing.T) {
	data := encodeTestImage(t, "png")
	if _, err := Decode(data[:len(data)/2]); !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("expected ErrUnsupportedImage, got %v", err)
	}
}

func TestExtensionDefault(t *testing.T) {
	if got := Extension([]byte("plain text")); got != ".jpg" {
		t.Fatalf("expected .jpg, got %q", got)
	}
}
