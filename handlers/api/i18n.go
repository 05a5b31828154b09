package api

import (
	"github.com/gofiber/fiber/v2"

	"autosig/middleware"
	"autosig/utils"
)

// I18nHandler serves notification texts to host shims
type I18nHandler struct{}

// GetTranslations returns the client messages in the language of the
// :lang parameter, or the negotiated request language without one
func (h *I18nHandler) GetTranslations(c *fiber.Ctx) error {
	tr := middleware.Translator(c)
	if lang := c.Params("lang"); lang != "" {
		tr = utils.NewTranslator(utils.MatchLanguage(lang))
	}

	translations := make(map[string]string, len(utils.ClientMessageIDs))
	for _, id := range utils.ClientMessageIDs {
		translations[id] = tr.T(id)
	}

	return c.JSON(fiber.Map{
		"language": tr.Language(),
		"messages": translations,
	})
}
