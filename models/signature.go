package models

import (
	"bytes"
	"encoding/json"
	"strings"

	"autosig/utils"
)

// ImageRef is an inline image referenced by signature content
type ImageRef struct {
	ID   string `json:"id"`
	Data string `json:"data,omitempty"` // base64
	URL  string `json:"url,omitempty"`
}

// Signature is either present (possibly with empty content) or absent.
// The zero value is absent.
type Signature struct {
	content string
	images  []ImageRef
	present bool
}

// Present returns a signature carrying content and images
func Present(content string, images []ImageRef) Signature {
	return Signature{content: content, images: images, present: true}
}

// Absent returns the "no signature" value
func Absent() Signature {
	return Signature{}
}

// IsPresent reports whether a signature was found
func (s Signature) IsPresent() bool {
	return s.present
}

// Content returns the HTML content
func (s Signature) Content() string {
	return s.content
}

// Images returns a copy of the image list
func (s Signature) Images() []ImageRef {
	if len(s.images) == 0 {
		return nil
	}
	out := make([]ImageRef, len(s.images))
	copy(out, s.images)
	return out
}

// WithContent returns a copy with its content replaced
func (s Signature) WithContent(content string) Signature {
	s.content = content
	return s
}

type signatureJSON struct {
	Content *string    `json:"content"`
	Images  []ImageRef `json:"images,omitempty"`
}

// MarshalJSON encodes an absent signature as null
func (s Signature) MarshalJSON() ([]byte, error) {
	if !s.present {
		return []byte("null"), nil
	}
	content := s.content
	return json.Marshal(signatureJSON{Content: &content, Images: s.images})
}

// UnmarshalJSON treats the presence of the "content" key as the validity
// predicate. A string "html" key replaces the text of a present
// signature. Anything that is not an object decodes to Absent without
// error.
func (s *Signature) UnmarshalJSON(data []byte) error {
	*s = Absent()

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return err
	}

	raw, ok := fields["content"]
	if !ok {
		return nil
	}
	content := contentText(raw)
	if html, ok := fields["html"]; ok && isJSONString(html) {
		content = contentText(html)
	}

	var images []ImageRef
	if rawImages, ok := fields["images"]; ok {
		if err := json.Unmarshal(rawImages, &images); err != nil {
			utils.Log.Debug("Ignoring undecodable signature images: %v", err)
			images = nil
		}
	}

	*s = Present(content, images)
	return nil
}

// contentText returns a JSON string's value, "" for null and the raw
// JSON text for any other value
func contentText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if string(trimmed) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		return text
	}
	return string(trimmed)
}

func isJSONString(raw json.RawMessage) bool {
	return strings.HasPrefix(string(bytes.TrimSpace(raw)), `"`)
}

// ParseSignature decodes a JSON payload. Malformed payloads are absent.
func ParseSignature(data []byte) Signature {
	var sig Signature
	if err := json.Unmarshal(data, &sig); err != nil {
		return Absent()
	}
	return sig
}
