// Package dev is a development signature server. It answers the calls the
// signature pipeline makes to the remote: session status, delegated
// sign-in, the default signature and its images.
package dev

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"autosig/models"
)

// ErrInvalidMailbox is returned for mailbox names that are not a plain
// file name
var ErrInvalidMailbox = errors.New("invalid mailbox")

// Template is a stored signature before its images are rewritten
type Template struct {
	HTML string
	// Images by file name, as referenced from HTML
	Images map[string][]byte
}

// Source looks up the signature template of a mailbox. A nil template
// without error means the mailbox has no signature for kind.
type Source interface {
	Template(ctx context.Context, mailbox string, kind models.ComposeKind) (*Template, error)
}

// templateName is the file or subject a signature kind is stored under
func templateName(kind models.ComposeKind) string {
	if kind.Normalize() == models.ComposeReply {
		return "reply"
	}
	return "new"
}

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true}

// FileSource reads <dir>/<mailbox>/new.html and reply.html. Images are
// the image files beside them.
type FileSource struct {
	dir string
}

// NewFileSource creates a source rooted at dir
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

func (s *FileSource) mailboxDir(mailbox string) (string, error) {
	if mailbox == "" || mailbox != filepath.Base(mailbox) || strings.HasPrefix(mailbox, ".") {
		return "", ErrInvalidMailbox
	}
	return filepath.Join(s.dir, strings.ToLower(mailbox)), nil
}

func (s *FileSource) Template(ctx context.Context, mailbox string, kind models.ComposeKind) (*Template, error) {
	dir, err := s.mailboxDir(mailbox)
	if err != nil {
		return nil, err
	}

	html, err := os.ReadFile(filepath.Join(dir, templateName(kind)+".html"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read signature: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list signature images: %w", err)
	}

	tpl := &Template{HTML: string(html), Images: make(map[string][]byte)}
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read image %s: %w", e.Name(), err)
		}
		tpl.Images[e.Name()] = data
	}
	return tpl, nil
}
