package utils

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// SignaturePolicy allows the markup e-mail signatures are made of,
// including inline styles and cid: image references.
var SignaturePolicy *bluemonday.Policy

func init() {
	SignaturePolicy = bluemonday.UGCPolicy()

	SignaturePolicy.AllowElements("p", "br", "div", "span", "font", "hr")
	SignaturePolicy.AllowElements("strong", "b", "em", "i", "u", "s", "small")
	SignaturePolicy.AllowElements("table", "thead", "tbody", "tr", "th", "td")
	SignaturePolicy.AllowElements("a", "img")

	SignaturePolicy.AllowAttrs("href", "target").OnElements("a")
	SignaturePolicy.AllowAttrs("src", "alt", "title", "width", "height", "border").OnElements("img")
	SignaturePolicy.AllowAttrs("cellpadding", "cellspacing", "border", "width", "align", "valign").OnElements("table", "td", "th", "tr")
	SignaturePolicy.AllowAttrs("color", "face", "size").OnElements("font")
	SignaturePolicy.AllowAttrs("style").Matching(regexp.MustCompile(`^[^<>]*$`)).Globally()
	SignaturePolicy.AllowAttrs("class", "id").Globally()

	SignaturePolicy.RequireParseableURLs(true)
	SignaturePolicy.AllowURLSchemes("http", "https", "mailto", "tel", "cid")
	SignaturePolicy.AllowDataURIImages()
}

// SanitizeSignature strips scripts and unsafe attributes from signature HTML
func SanitizeSignature(html string) string {
	return SignaturePolicy.Sanitize(html)
}
