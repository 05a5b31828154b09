package utils

import (
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var localeFS embed.FS

// DefaultLanguage is used when the host language has no catalog entry
const DefaultLanguage = "en"

var bundle *i18n.Bundle

func init() {
	var err error
	bundle, err = newBundle()
	if err != nil {
		Log.Error("Failed to load embedded locales: %v", err)
		bundle = i18n.NewBundle(language.English)
	}
}

func newBundle() (*i18n.Bundle, error) {
	b := i18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		name := path.Join("locales", entry.Name())
		data, err := localeFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if _, err := b.ParseMessageFileBytes(data, name); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	}
	return b, nil
}

// Translator resolves message IDs for one display language
type Translator struct {
	lang      string
	localizer *i18n.Localizer
}

// NewTranslator returns a translator for a host language such as
// "nl-NL". Only the primary subtag is used.
func NewTranslator(lang string) *Translator {
	primary := strings.ToLower(strings.SplitN(strings.TrimSpace(lang), "-", 2)[0])
	if primary == "" {
		primary = DefaultLanguage
	}
	return &Translator{
		lang:      primary,
		localizer: i18n.NewLocalizer(bundle, primary, DefaultLanguage),
	}
}

// Language returns the primary language subtag in use
func (t *Translator) Language() string {
	return t.lang
}

// T translates a message ID. Positional args are available to the
// message template as .Arg0, .Arg1, ...
func (t *Translator) T(messageID string, args ...interface{}) string {
	cfg := &i18n.LocalizeConfig{MessageID: messageID}
	if len(args) > 0 {
		data := make(map[string]interface{}, len(args))
		for i, a := range args {
			data[fmt.Sprintf("Arg%d", i)] = a
		}
		cfg.TemplateData = data
	}

	msg, err := t.localizer.Localize(cfg)
	if err != nil {
		Log.Debug("Translation error for '%s': %v", messageID, err)
		return messageID
	}
	return msg
}

// Message IDs used by the signature pipeline
const (
	MsgInsertSignatureSuccess  = "insert_signature_success"
	MsgNoDefaultSignature      = "no_default_signature"
	MsgInvalidDefaultSignature = "invalid_default_signature"
	MsgInsertSignatureHTTP     = "insert_signature_http_error"
	MsgSignatureTooLarge       = "signature_too_large"
	MsgAttachmentLocalhost     = "error_url_attachment_localhost"
	MsgShowTaskPane            = "show_task_pane"
	MsgShowNotificationFailed  = "show_notification_failed"
	MsgUnknownError            = "unknown_error"
)

// ClientMessageIDs are the messages a host shim may show on its own.
// Messages taking arguments are rendered by the daemon only.
var ClientMessageIDs = []string{
	MsgInsertSignatureSuccess,
	MsgNoDefaultSignature,
	MsgInvalidDefaultSignature,
	MsgInsertSignatureHTTP,
	MsgAttachmentLocalhost,
	MsgShowTaskPane,
	MsgShowNotificationFailed,
	MsgUnknownError,
}

// MatchLanguage picks the catalog language best serving an
// Accept-Language style preference list, or DefaultLanguage.
func MatchLanguage(preference string) string {
	tags, _, err := language.ParseAcceptLanguage(preference)
	if err != nil || len(tags) == 0 {
		return DefaultLanguage
	}

	supported := bundle.LanguageTags()
	_, idx, confidence := language.NewMatcher(supported).Match(tags...)
	if confidence == language.No {
		return DefaultLanguage
	}
	base, _ := supported[idx].Base()
	return base.String()
}
