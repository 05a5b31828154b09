package utils

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/nfnt/resize"
)

// OptimizeImage downscales an image wider than maxWidth, keeping its
// aspect ratio. Formats other than jpeg and png are returned unchanged.
func OptimizeImage(data []byte, maxWidth uint) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	if uint(img.Bounds().Dx()) <= maxWidth {
		return data, nil
	}

	m := resize.Resize(maxWidth, 0, img, resize.Lanczos3)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, m, &jpeg.Options{Quality: 85})
	case "png":
		err = png.Encode(&buf, m)
	default:
		return data, nil
	}
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// OptimizeBase64Image is OptimizeImage for base64 payloads. Undecodable
// input is returned as given.
func OptimizeBase64Image(data string, maxWidth uint) string {
	if maxWidth == 0 || data == "" {
		return data
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return data
	}

	out, err := OptimizeImage(raw, maxWidth)
	if err != nil {
		Log.Debug("Image left unoptimized: %v", err)
		return data
	}
	return base64.StdEncoding.EncodeToString(out)
}
