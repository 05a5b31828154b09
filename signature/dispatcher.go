package signature

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"autosig/host"
	"autosig/models"
	"autosig/utils"
)

// Host insertion limits in UTF-16 code units
const (
	SignatureLimit       = 30000
	SelectedContentLimit = 1000000
)

var (
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrTooLarge            = errors.New("signature too large")
	ErrDuplicateAttachment = errors.New("attachment already exists")
	ErrMissingImageSource  = errors.New("image has neither data nor url")
)

const lineBreak = "<br />"

// Dispatcher inserts a resolved signature into the compose item
type Dispatcher struct {
	item          host.Item
	notes         *Notifications
	caps          host.Capabilities
	baseURL       string
	sanitize      bool
	maxImageWidth uint
	metrics       *Metrics
	log           *utils.Logger
}

// DispatcherOptions configures a Dispatcher
type DispatcherOptions struct {
	Capabilities host.Capabilities
	// BaseURL resolves relative image URLs
	BaseURL  string
	Sanitize bool
	// MaxImageWidth downscales wider base64 images; zero keeps them
	MaxImageWidth uint
	Metrics       *Metrics
	Logger        *utils.Logger
}

// NewDispatcher creates a Dispatcher for one compose item
func NewDispatcher(item host.Item, notes *Notifications, opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{
		item:          item,
		notes:         notes,
		caps:          opts.Capabilities,
		baseURL:       opts.BaseURL,
		sanitize:      opts.Sanitize,
		maxImageWidth: opts.MaxImageWidth,
		metrics:       opts.Metrics,
		log:           opts.Logger,
	}
	if d.log == nil {
		d.log = utils.Nop()
	}
	return d
}

// method is a host content call with its size limit
type method struct {
	name  string
	limit int
	call  func(ctx context.Context, html string) error
}

func (d *Dispatcher) method() method {
	if d.caps.SetSignature {
		return method{name: "setSignature", limit: SignatureLimit, call: d.item.SetSignature}
	}
	return method{name: "setSelectedContent", limit: SelectedContentLimit, call: d.item.SetSelectedContent}
}

// Limit returns the content limit of the method the host supports
func (d *Dispatcher) Limit() int {
	return d.method().limit
}

// Insert attaches the signature's images and then inserts its content.
// Every failure is reported in the notification bar and returned.
func (d *Dispatcher) Insert(ctx context.Context, sig models.Signature) error {
	if !sig.IsPresent() {
		d.notify(ctx, utils.MsgInvalidDefaultSignature, true)
		d.metrics.inserted("invalid")
		return utils.PayloadError("insert signature", ErrInvalidSignature)
	}

	content := sig.Content()
	if d.sanitize {
		content = utils.SanitizeSignature(content)
	}

	m := d.method()
	if !d.caps.SetSignature {
		content = lineBreak + content + lineBreak
	}

	if n := utils.HostLength(content); n > m.limit {
		d.log.Warn("Signature of %s exceeds %s limit of %s", humanize.Comma(int64(n)), m.name, humanize.Comma(int64(m.limit)))
		d.notify(ctx, utils.MsgSignatureTooLarge, false, humanize.Comma(int64(n)), humanize.Comma(int64(m.limit)))
		d.metrics.inserted("too_large")
		return utils.OversizeError("insert signature", ErrTooLarge).
			WithContext("length", n).
			WithContext("limit", m.limit)
	}

	if err := d.attachImages(ctx, sig.Images()); err != nil {
		d.metrics.inserted("attachment_failed")
		return err
	}

	if err := m.call(ctx, content); err != nil {
		d.log.Error("%s failed: %v", m.name, err)
		d.notify(ctx, utils.MsgInsertSignatureHTTP, false)
		d.metrics.inserted("host_failed")
		return utils.HostError(m.name, err)
	}

	d.log.Debug("Inserted signature with %s", m.name)
	d.metrics.inserted("inserted")
	return nil
}

// attachImages consumes images last to first. The first failure aborts.
func (d *Dispatcher) attachImages(ctx context.Context, images []models.ImageRef) error {
	if len(images) == 0 {
		return nil
	}

	existing, err := d.item.Attachments(ctx)
	if err != nil {
		d.notify(ctx, utils.MsgInsertSignatureHTTP, false)
		return utils.AttachmentError("list attachments", err)
	}
	names := make(map[string]struct{}, len(existing))
	for _, a := range existing {
		names[a.Name] = struct{}{}
	}

	for len(images) > 0 {
		img := images[len(images)-1]
		images = images[:len(images)-1]

		if err := d.attach(ctx, img, names); err != nil {
			return err
		}
		names[img.ID] = struct{}{}
	}
	return nil
}

func (d *Dispatcher) attach(ctx context.Context, img models.ImageRef, names map[string]struct{}) error {
	// inline images always prevent duplicates
	if _, dup := names[img.ID]; dup {
		d.log.Warn("Attachment %s already exists", img.ID)
		return utils.AttachmentError("add attachment", ErrDuplicateAttachment).WithContext("name", img.ID)
	}

	var (
		kind models.AttachmentType
		data string
	)
	switch {
	case d.caps.Base64Attachments && img.Data != "":
		kind, data = models.AttachmentCid, utils.OptimizeBase64Image(img.Data, d.maxImageWidth)
	case img.URL != "":
		kind, data = models.AttachmentURL, utils.AbsoluteURL(d.baseURL, img.URL)
	default:
		d.notify(ctx, utils.MsgInsertSignatureHTTP, false)
		return utils.AttachmentError("add attachment", ErrMissingImageSource).WithContext("name", img.ID)
	}

	err := d.item.AddAttachment(ctx, kind, data, img.ID, host.AttachmentOptions{Inline: true})
	if err == nil {
		d.log.Debug("Attached %s as %s", img.ID, kind)
		return nil
	}

	if kind == models.AttachmentURL && strings.Contains(data, "://localhost") {
		d.notify(ctx, utils.MsgAttachmentLocalhost, false)
	} else {
		d.notify(ctx, utils.MsgInsertSignatureHTTP, false)
	}
	return utils.AttachmentError(fmt.Sprintf("add attachment %s", img.ID), err)
}

func (d *Dispatcher) notify(ctx context.Context, messageID string, success bool, args ...interface{}) {
	if d.notes == nil {
		return
	}
	if success {
		d.notes.Success(ctx, messageID, args...)
		return
	}
	d.notes.Error(ctx, messageID, args...)
}
