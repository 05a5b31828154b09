package dev

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"path"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"autosig/models"
)

// IMAPSource reads signatures from messages in an IMAP folder. The
// latest message addressed to the mailbox whose subject is "new" or
// "reply" holds the signature; its inline images are the attachments.
type IMAPSource struct {
	server   string
	port     int
	username string
	password string
	folder   string
}

// NewIMAPSource creates an IMAP signature source
func NewIMAPSource(server string, port int, username, password, folder string) *IMAPSource {
	if folder == "" {
		folder = "Signatures"
	}
	return &IMAPSource{server: server, port: port, username: username, password: password, folder: folder}
}

func (s *IMAPSource) connect() (*client.Client, error) {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", s.server, s.port), nil)
	if err != nil {
		return nil, fmt.Errorf("connection error: %v", err)
	}

	if err := c.Login(s.username, s.password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("login error: %v", err)
	}
	return c, nil
}

func (s *IMAPSource) Template(ctx context.Context, mailbox string, kind models.ComposeKind) (*Template, error) {
	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select(s.folder, true); err != nil {
		return nil, fmt.Errorf("error selecting folder %s: %v", s.folder, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Header = textproto.MIMEHeader{"Subject": {templateName(kind)}}
	if mailbox != "" {
		criteria.Header.Set("To", mailbox)
	}
	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search error: %v", err)
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	latest := seqNums[0]
	for _, n := range seqNums[1:] {
		if n > latest {
			latest = n
		}
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(latest)
	section := &imap.BodySectionName{Peek: true}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var msg *imap.Message
	for m := range messages {
		msg = m
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch error: %v", err)
	}
	if msg == nil {
		return nil, nil
	}

	r := msg.GetBody(section)
	if r == nil {
		return nil, fmt.Errorf("message %d has no body", latest)
	}
	return parseTemplate(r)
}

// parseTemplate takes the first text/html part as the signature and
// every part with a file name or content id as an image
func parseTemplate(r io.Reader) (*Template, error) {
	m, err := mail.ReadMessage(r)
	if err != nil {
		return nil, fmt.Errorf("error parsing message: %v", err)
	}

	tpl := &Template{Images: make(map[string][]byte)}
	if err := collectParts(textproto.MIMEHeader(m.Header), m.Body, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

func collectParts(header textproto.MIMEHeader, body io.Reader, tpl *Template) error {
	mediaType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			p, err := mr.NextRawPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("error reading part: %v", err)
			}
			if err := collectParts(p.Header, p, tpl); err != nil {
				return err
			}
		}
	}

	data, err := io.ReadAll(decodeTransfer(header.Get("Content-Transfer-Encoding"), body))
	if err != nil {
		return fmt.Errorf("error reading part: %v", err)
	}

	if name := partName(header); name != "" {
		tpl.Images[name] = data
		return nil
	}
	if mediaType == "text/html" && tpl.HTML == "" {
		tpl.HTML = string(data)
	}
	return nil
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

// partName is the file name of an attachment part, or its content id
func partName(header textproto.MIMEHeader) string {
	if _, params, err := mime.ParseMediaType(header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		return path.Base(params["filename"])
	}
	if id := strings.Trim(header.Get("Content-ID"), "<> "); id != "" {
		return id
	}
	return ""
}

var (
	_ Source = (*IMAPSource)(nil)
	_ Source = (*FileSource)(nil)
)
