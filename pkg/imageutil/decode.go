package imageutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedImage is returned for bytes that are not a decodable image.
var ErrUnsupportedImage = errors.New("unsupported image")

var supported = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Decoded is a validated image with its sniffed content type.
type Decoded struct {
	Data     []byte
	MIMEType string
	Format   string
	Width    int
	Height   int
}

// Extension sniffs data and returns the matching file extension with the
// dot. Unknown content gets .jpg, the format Telegram uses for photos.
func Extension(data []byte) string {
	if ext, ok := supported[mimetype.Detect(data).String()]; ok {
		return ext
	}
	return ".jpg"
}

// Decode sniffs the content type and fully decodes the image to make sure
// the generator receives something it can read.
func Decode(data []byte) (Decoded, error) {
	if len(data) == 0 {
		return Decoded{}, fmt.Errorf("%w: empty payload", ErrUnsupportedImage)
	}
	mt := mimetype.Detect(data)
	mimeType := mt.String()
	if _, ok := supported[mimeType]; !ok {
		return Decoded{}, fmt.Errorf("%w: %s", ErrUnsupportedImage, mimeType)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	b := img.Bounds()
	return Decoded{
		Data:     data,
		MIMEType: mimeType,
		Format:   format,
		Width:    b.Dx(),
		Height:   b.Dy(),
	}, nil
}
