package imagecache

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Tier identifies where an image was resolved from.
type Tier string

const (
	TierMemory  Tier = "memory"
	TierDisk    Tier = "disk"
	TierNetwork Tier = "network"
)

// Image is a resolved cache entry. Data holds the bytes exactly as received
// from the network (and as stored on disk); Decoded is the decoded value.
// Images returned by a Cache are shared and must not be mutated.
type Image struct {
	Address string
	Format  string
	Data    []byte
	Decoded image.Image
	Origin  Tier
}

// ContentType returns the MIME type for the decoded format.
func (img *Image) ContentType() string {
	if img == nil || img.Format == "" {
		return "application/octet-stream"
	}
	return "image/" + img.Format
}

// Decoder turns raw bytes into an image. It never fails loudly: ok=false
// means the bytes are not a recognisable image.
type Decoder func(data []byte) (decoded image.Image, format string, ok bool)

// DecodeImage is the default Decoder; it understands JPEG, PNG, GIF, WebP and BMP.
func DecodeImage(data []byte) (image.Image, string, bool) {
	if len(data) == 0 {
		return nil, "", false
	}
	decoded, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", false
	}
	return decoded, format, true
}
