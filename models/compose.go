package models

// ComposeKind classifies a compose window
type ComposeKind int

const (
	ComposeNew ComposeKind = iota
	ComposeReply
	ComposeForward
)

// ParseComposeKind maps the host's compose type name to a ComposeKind.
// Unknown names are treated as a new message.
func ParseComposeKind(name string) ComposeKind {
	switch name {
	case "reply":
		return ComposeReply
	case "forward":
		return ComposeForward
	default:
		return ComposeNew
	}
}

// Normalize folds Forward into New. There is no forward signature.
func (k ComposeKind) Normalize() ComposeKind {
	if k == ComposeForward {
		return ComposeNew
	}
	return k
}

// String returns the host name of the compose kind
func (k ComposeKind) String() string {
	switch k {
	case ComposeReply:
		return "reply"
	case ComposeForward:
		return "forward"
	default:
		return "newMail"
	}
}

// AttachmentType tells the signature endpoint and the host how inline
// images are transferred.
type AttachmentType int

const (
	AttachmentCid AttachmentType = iota
	AttachmentURL
	AttachmentEmbeddedBase64
	AttachmentEmbeddedURL
)

// String returns a readable name for logs
func (t AttachmentType) String() string {
	switch t {
	case AttachmentCid:
		return "cid"
	case AttachmentURL:
		return "url"
	case AttachmentEmbeddedBase64:
		return "embeddedBase64"
	case AttachmentEmbeddedURL:
		return "embeddedUrl"
	default:
		return "unknown"
	}
}
