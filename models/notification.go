package models

// NotificationKind is the host notification message type
type NotificationKind string

const (
	NotificationProgress      NotificationKind = "progressIndicator"
	NotificationInformational NotificationKind = "informationalMessage"
	NotificationError         NotificationKind = "errorMessage"
	NotificationInsight       NotificationKind = "insightMessage" // the only kind allowing actions
)

// NotificationAction is a button shown on an insight notification
type NotificationAction struct {
	ActionText string `json:"actionText"`
	ActionType string `json:"actionType"`
	CommandID  string `json:"commandId"`
}

// NotificationDetails is what the host receives for a slot
type NotificationDetails struct {
	Type       NotificationKind     `json:"type"`
	Message    string               `json:"message"`
	Icon       string               `json:"icon,omitempty"`
	Persistent *bool                `json:"persistent,omitempty"`
	Actions    []NotificationAction `json:"actions,omitempty"`
}

// NotificationOptions are the caller's wishes for a notification
type NotificationOptions struct {
	Kind         NotificationKind
	ShowTaskPane bool
	Persistent   *bool
}
