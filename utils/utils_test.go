package utils

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostLength(t *testing.T) {
	assert.Equal(t, 0, HostLength(""))
	assert.Equal(t, 5, HostLength("hello"))
	assert.Equal(t, 4, HostLength("café"))
	assert.Equal(t, 2, HostLength("😀"), "astral runes count as a surrogate pair")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "exact", Truncate("exact", 5))
	assert.Equal(t, "abcd…", Truncate("abcdefgh", 5))
	assert.Equal(t, "", Truncate("abc", 0))

	long := strings.Repeat("é", 200)
	out := Truncate(long, 150)
	assert.Equal(t, 150, len([]rune(out)))
	assert.True(t, strings.HasSuffix(out, Ellipsis))

	emoji := Truncate(strings.Repeat("😀", 150), 150)
	assert.Equal(t, 150-1, HostLength(emoji), "a pair that does not fit is dropped whole")
	assert.Equal(t, 74, strings.Count(emoji, "😀"))
	assert.True(t, strings.HasSuffix(emoji, Ellipsis))

	assert.Equal(t, "a…", Truncate("a😀b", 3))
}

func TestAbsoluteURL(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{"https://sig.example.com/app/", "images/logo.png", "https://sig.example.com/app/images/logo.png"},
		{"https://sig.example.com/app", "/images/logo.png", "https://sig.example.com/images/logo.png"},
		{"https://sig.example.com", "https://cdn.example.com/x.png", "https://cdn.example.com/x.png"},
		{"", "images/logo.png", "images/logo.png"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AbsoluteURL(tt.base, tt.ref))
	}
}

func TestTranslator(t *testing.T) {
	en := NewTranslator("en-US")
	assert.Equal(t, "en", en.Language())
	assert.Equal(t, "Open the task pane", en.T(MsgShowTaskPane))

	nl := NewTranslator("nl-NL")
	assert.Equal(t, "nl", nl.Language())
	assert.Equal(t, "Open het zijpaneel", nl.T(MsgShowTaskPane))

	// missing Dutch entries fall back to English
	assert.Equal(t, "The default signature is too large to insert (31,000 of 30,000 characters).",
		nl.T(MsgSignatureTooLarge, "31,000", "30,000"))

	assert.Equal(t, "en", NewTranslator("").Language())
	assert.Equal(t, en.T(MsgUnknownError), NewTranslator("fr").T(MsgUnknownError))
	assert.Equal(t, "no_such_message", en.T("no_such_message"))
}

func TestAppError(t *testing.T) {
	base := errors.New("connection refused")
	err := FetchError("fetch signature", base).WithContext("status", 502)

	assert.Equal(t, "fetch signature: connection refused", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Equal(t, 502, err.Context["status"])

	wrapped := fmt.Errorf("resolve: %w", err)
	assert.Equal(t, KindTransientFetch, KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(base))
	assert.Equal(t, "transient_fetch", KindTransientFetch.String())

	assert.Equal(t, "no credential", CredentialError("no credential", nil).Error())
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, WARN)

	log.Info("hidden")
	log.Warn("shown %d", 1)
	log.WithField("mailbox", "jane@example.com").WithField("event", "e1").Error("failed")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown 1")
	assert.Contains(t, out, "[ERROR] failed [event=e1, mailbox=jane@example.com]")

	buf.Reset()
	log.SetLevel(OFF)
	log.Error("silent")
	assert.Empty(t, buf.String())

	assert.Equal(t, DEBUG, ParseLogLevel("debug"))
	assert.Equal(t, WARN, ParseLogLevel("Warning"))
	assert.Equal(t, INFO, ParseLogLevel("bogus"))

	var nilLogger *Logger
	nilLogger.Info("no panic")
	nilLogger.WithField("k", "v").Info("no panic")
}

func TestSanitizeSignature(t *testing.T) {
	in := `<p style="color:red" onclick="x()">Jane</p><script>alert(1)</script><img src="cid:logo.png" alt="logo"><a href="javascript:alert(1)">x</a>`
	out := SanitizeSignature(in)

	assert.Contains(t, out, `<p style="color:red">Jane</p>`)
	assert.Contains(t, out, `src="cid:logo.png"`)
	assert.NotContains(t, out, "script")
	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "javascript")
}

func pngOfWidth(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestOptimizeImage(t *testing.T) {
	small := pngOfWidth(t, 50, 10)
	out, err := OptimizeImage(small, 100)
	require.NoError(t, err)
	assert.Equal(t, small, out)

	out, err = OptimizeImage(pngOfWidth(t, 400, 100), 100)
	require.NoError(t, err)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 25, cfg.Height)

	_, err = OptimizeImage([]byte("not an image"), 100)
	assert.Error(t, err)
}

func TestOptimizeBase64Image(t *testing.T) {
	assert.Equal(t, "not base64!", OptimizeBase64Image("not base64!", 100))
	assert.Equal(t, "aGk=", OptimizeBase64Image("aGk=", 100), "undecodable images are kept")
	assert.Equal(t, "aGk=", OptimizeBase64Image("aGk=", 0))

	big := base64.StdEncoding.EncodeToString(pngOfWidth(t, 400, 100))
	raw, err := base64.StdEncoding.DecodeString(OptimizeBase64Image(big, 100))
	require.NoError(t, err)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
}

func TestMatchLanguage(t *testing.T) {
	assert.Equal(t, "nl", MatchLanguage("nl-NL"))
	assert.Equal(t, "nl", MatchLanguage("fr;q=0.9, nl;q=0.8"))
	assert.Equal(t, "en", MatchLanguage("en-GB"))
	assert.Equal(t, "en", MatchLanguage("ja"))
	assert.Equal(t, "en", MatchLanguage(""))
	assert.Equal(t, "en", MatchLanguage("!!"))
}
