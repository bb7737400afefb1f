// ABOUTME: Attachment models for image, CSV and PDF uploads
// ABOUTME: Attachments carry raw bytes; the persisted log keeps only a digest reference
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// AttachmentKind identifies the attachment variant
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentCSV   AttachmentKind = "csv"
	AttachmentPDF   AttachmentKind = "pdf"
)

// Attachment is a file sent alongside a question
type Attachment struct {
	Kind     AttachmentKind `json:"kind"`
	Filename string         `json:"filename,omitempty"`
	Payload  []byte         `json:"-"`
}

// AttachmentRef is the persisted metadata for an attachment.
// PayloadRef is the hex sha256 of the payload bytes.
type AttachmentRef struct {
	Kind       AttachmentKind `json:"kind" yaml:"kind"`
	Filename   string         `json:"filename,omitempty" yaml:"filename,omitempty"`
	PayloadRef string         `json:"payload_ref" yaml:"payload_ref"`
	Size       int            `json:"size" yaml:"size"`
}

// ParseAttachmentKind normalizes a kind string, falling back to the filename
// extension when the kind is empty.
func ParseAttachmentKind(kind, filename string) (AttachmentKind, error) {
	k := strings.ToLower(strings.TrimSpace(kind))
	if k == "" {
		k = strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	}

	switch k {
	case "image", "png", "jpg", "jpeg", "gif", "webp", "image/png", "image/jpeg", "image/gif", "image/webp":
		return AttachmentImage, nil
	case "csv", "text/csv":
		return AttachmentCSV, nil
	case "pdf", "application/pdf":
		return AttachmentPDF, nil
	}
	return "", fmt.Errorf("unsupported attachment kind %q", kind)
}

// Validate checks the attachment has a known kind and a payload
func (a *Attachment) Validate() error {
	switch a.Kind {
	case AttachmentImage, AttachmentCSV, AttachmentPDF:
	default:
		return fmt.Errorf("unsupported attachment kind %q", a.Kind)
	}
	if len(a.Payload) == 0 {
		return fmt.Errorf("%s attachment has an empty payload", a.Kind)
	}
	return nil
}

// Ref builds the persisted reference for the attachment
func (a *Attachment) Ref() *AttachmentRef {
	sum := sha256.Sum256(a.Payload)
	return &AttachmentRef{
		Kind:       a.Kind,
		Filename:   a.Filename,
		PayloadRef: hex.EncodeToString(sum[:]),
		Size:       len(a.Payload),
	}
}
