package middleware

import (
	"github.com/gofiber/fiber/v2"

	"autosig/utils"
)

const translatorKey = "translator"

// LocaleMiddleware detects the caller's language from the lang query
// parameter, the lang cookie or Accept-Language, in that order
func LocaleMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		pref := c.Query("lang")
		if pref == "" {
			pref = c.Cookies("lang")
		}
		if pref == "" {
			pref = c.Get(fiber.HeaderAcceptLanguage)
		}

		lang := utils.MatchLanguage(pref)
		c.Locals(translatorKey, utils.NewTranslator(lang))

		utils.Log.Debug("Locale detected: %s for path: %s", lang, c.Path())
		return c.Next()
	}
}

// Translator returns the translator LocaleMiddleware stored, or one for
// the default language
func Translator(c *fiber.Ctx) *utils.Translator {
	if tr, ok := c.Locals(translatorKey).(*utils.Translator); ok {
		return tr
	}
	return utils.NewTranslator(utils.DefaultLanguage)
}
