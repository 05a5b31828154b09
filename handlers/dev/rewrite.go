package dev

import (
	"encoding/base64"
	"mime"
	"net/url"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"autosig/models"
)

// ImagePath is the route images are served from
const ImagePath = "/addin/outlook/images"

// ImageURL is the address of a mailbox image below baseURL
func ImageURL(baseURL, mailbox, name string) string {
	return strings.TrimRight(baseURL, "/") + ImagePath + "/" + url.PathEscape(mailbox) + "/" + url.PathEscape(name)
}

// Render turns a template into the signature returned to the add-in.
// Relative image sources that name a template image are rewritten for
// the requested attachment type:
//
//	cid            cid: reference, image sent as base64 data
//	url            cid: reference, image sent as a URL to download
//	embeddedBase64 data: URI in the content
//	embeddedUrl    absolute URL in the content
func Render(tpl *Template, at models.AttachmentType, baseURL, mailbox string) (models.Signature, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(tpl.HTML), ctx)
	if err != nil {
		return models.Absent(), err
	}

	used := make(map[string]bool)
	for _, n := range nodes {
		walk(n, func(img *html.Node) {
			for i, attr := range img.Attr {
				if attr.Key != "src" {
					continue
				}
				name := imageName(attr.Val)
				data, ok := tpl.Images[name]
				if !ok {
					continue
				}
				img.Attr[i].Val = imageSource(at, name, data, baseURL, mailbox)
				used[name] = true
			}
		})
	}

	var b strings.Builder
	for _, n := range nodes {
		if err := html.Render(&b, n); err != nil {
			return models.Absent(), err
		}
	}

	return models.Present(b.String(), imageRefs(tpl, used, at, baseURL, mailbox)), nil
}

func walk(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode && n.DataAtom == atom.Img {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// imageName is the file name of a relative src, or "" for sources that
// already point somewhere
func imageName(src string) string {
	if src == "" || strings.Contains(src, ":") {
		return ""
	}
	return path.Base(src)
}

func imageSource(at models.AttachmentType, name string, data []byte, baseURL, mailbox string) string {
	switch at {
	case models.AttachmentEmbeddedBase64:
		return "data:" + contentType(name) + ";base64," + base64.StdEncoding.EncodeToString(data)
	case models.AttachmentEmbeddedURL:
		return ImageURL(baseURL, mailbox, name)
	default:
		return "cid:" + name
	}
}

func imageRefs(tpl *Template, used map[string]bool, at models.AttachmentType, baseURL, mailbox string) []models.ImageRef {
	if at != models.AttachmentCid && at != models.AttachmentURL {
		return nil
	}

	names := make([]string, 0, len(used))
	for name := range used {
		names = append(names, name)
	}
	sort.Strings(names)

	refs := make([]models.ImageRef, 0, len(names))
	for _, name := range names {
		ref := models.ImageRef{ID: name}
		if at == models.AttachmentCid {
			ref.Data = base64.StdEncoding.EncodeToString(tpl.Images[name])
		} else {
			ref.URL = ImageURL(baseURL, mailbox, name)
		}
		refs = append(refs, ref)
	}
	return refs
}

func contentType(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
