package types

import "strings"

// AttachmentKind classifies a binary attachment by its MIME type
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentVideo AttachmentKind = "video"
	AttachmentAudio AttachmentKind = "audio"
	AttachmentFile  AttachmentKind = "file"
)

// AttachmentKindFromMIME maps a MIME type to an AttachmentKind by prefix.
// Unknown or missing MIME types default to AttachmentFile.
func AttachmentKindFromMIME(mimeType string) AttachmentKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return AttachmentImage
	case strings.HasPrefix(mimeType, "video/"):
		return AttachmentVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return AttachmentAudio
	default:
		return AttachmentFile
	}
}
