// Package content defines the tagged content variant relayed between paired
// participants. The engine never inspects transport-specific payloads; it
// only carries the kind discriminator and the opaque transport reference
// (text body or file handle) from one side of a pair to the other.
package content

// Kind discriminates the supported relay payload types.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindVoice    Kind = "voice"
	KindDocument Kind = "document"
	KindVideo    Kind = "video"
	KindSticker  Kind = "sticker"

	// KindUnknown marks payloads the transport could not classify. The relay
	// forwards a placeholder notice instead of the raw payload.
	KindUnknown Kind = "unknown"
)

// Content is one relayable payload. Text holds the message body for
// KindText; for media kinds FileRef holds the transport's file handle and
// Caption an optional accompanying text.
type Content struct {
	Kind    Kind   `json:"kind"`
	Text    string `json:"text,omitempty"`
	FileRef string `json:"file_ref,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// Text returns a text content payload.
func Text(body string) Content {
	return Content{Kind: KindText, Text: body}
}

// Media returns a media content payload of the given kind.
func Media(kind Kind, fileRef, caption string) Content {
	return Content{Kind: kind, FileRef: fileRef, Caption: caption}
}
