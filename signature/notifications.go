package signature

import (
	"context"
	"fmt"
	"sync"

	"autosig/host"
	"autosig/models"
	"autosig/utils"
)

const (
	// SlotCount is the number of notification slots in rotation
	SlotCount = 5
	// MessageLimit is the longest message the host displays
	MessageLimit = 150

	DefaultIcon      = "eformity.tpicon_32x32"
	DefaultCommandID = "eformity.TaskpaneButton"
)

// SlotKey names slot i
func SlotKey(i int) string {
	return fmt.Sprintf("notification_%d", i)
}

// SlotRing hands out notification slots round robin. Once it wraps the
// oldest slot is reused.
type SlotRing struct {
	mu      sync.Mutex
	size    int
	next    int
	tracked map[string]struct{}
}

// NewSlotRing creates a ring of size slots
func NewSlotRing(size int) *SlotRing {
	if size <= 0 {
		size = SlotCount
	}
	return &SlotRing{size: size, tracked: make(map[string]struct{})}
}

// Allocate returns the next slot key and tracks it
func (r *SlotRing) Allocate() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := SlotKey(r.next)
	r.next = (r.next + 1) % r.size
	r.tracked[key] = struct{}{}
	return key
}

// Release stops tracking key. It reports false if key was not tracked.
func (r *SlotRing) Release(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tracked[key]; !ok {
		return false
	}
	delete(r.tracked, key)
	return true
}

// Tracked reports whether key is currently tracked
func (r *SlotRing) Tracked(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tracked[key]
	return ok
}

// Notifications shows localized status messages in the host's
// notification bar
type Notifications struct {
	ring      *SlotRing
	notifier  host.Notifier
	tr        *utils.Translator
	icon      string
	commandID string
	log       *utils.Logger
}

// NotificationsOptions configures Notifications
type NotificationsOptions struct {
	Icon      string
	CommandID string
	Logger    *utils.Logger
}

// NewNotifications binds a slot ring to a host notifier
func NewNotifications(ring *SlotRing, notifier host.Notifier, tr *utils.Translator, opts NotificationsOptions) *Notifications {
	n := &Notifications{
		ring:      ring,
		notifier:  notifier,
		tr:        tr,
		icon:      opts.Icon,
		commandID: opts.CommandID,
		log:       opts.Logger,
	}
	if n.ring == nil {
		n.ring = NewSlotRing(SlotCount)
	}
	if n.tr == nil {
		n.tr = utils.NewTranslator(utils.DefaultLanguage)
	}
	if n.icon == "" {
		n.icon = DefaultIcon
	}
	if n.commandID == "" {
		n.commandID = DefaultCommandID
	}
	if n.log == nil {
		n.log = utils.Nop()
	}
	return n
}

// Details builds what the host is sent for message
func (n *Notifications) Details(message string, opts models.NotificationOptions) models.NotificationDetails {
	d := models.NotificationDetails{
		Type:    opts.Kind,
		Message: utils.Truncate(message, MessageLimit),
	}
	if d.Type == "" {
		d.Type = models.NotificationInformational
	}

	if opts.ShowTaskPane {
		d.Actions = []models.NotificationAction{{
			ActionText: n.tr.T(utils.MsgShowTaskPane),
			ActionType: "showTaskPane",
			CommandID:  n.commandID,
		}}
	}
	// only insight messages carry actions
	if len(d.Actions) > 0 {
		d.Type = models.NotificationInsight
	}

	if d.Type == models.NotificationInformational || d.Type == models.NotificationInsight {
		d.Icon = n.icon
	}

	if d.Type == models.NotificationInformational {
		persistent := false
		if opts.Persistent != nil {
			persistent = *opts.Persistent
		}
		d.Persistent = &persistent
	}
	return d
}

// Show displays message in the next slot and returns the slot key. The
// key is returned even when the host call fails.
func (n *Notifications) Show(ctx context.Context, message string, opts models.NotificationOptions) (string, error) {
	details := n.Details(message, opts)
	key := n.ring.Allocate()

	if err := n.notifier.ReplaceNotification(ctx, key, details); err != nil {
		n.log.Warn("Showing notification %s failed: %v", key, err)
		return key, utils.HostError("show notification", err).WithContext("key", key)
	}
	return key, nil
}

// Close removes a notification shown by Show. Unknown or already closed
// keys are ignored.
func (n *Notifications) Close(ctx context.Context, key string) error {
	if !n.ring.Release(key) {
		return nil
	}
	if err := n.notifier.RemoveNotification(ctx, key); err != nil {
		return utils.HostError("remove notification", err).WithContext("key", key)
	}
	return nil
}

// Success shows a translated informational message with a task pane link
func (n *Notifications) Success(ctx context.Context, messageID string, args ...interface{}) (string, error) {
	return n.Show(ctx, n.tr.T(messageID, args...), models.NotificationOptions{ShowTaskPane: true})
}

// Error shows a translated error message
func (n *Notifications) Error(ctx context.Context, messageID string, args ...interface{}) (string, error) {
	return n.Show(ctx, n.tr.T(messageID, args...), models.NotificationOptions{Kind: models.NotificationError})
}
