package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"marketplace-chat/internal/models"
)

// MaxAttachmentSize is the largest file accepted for upload.
const MaxAttachmentSize = 10 * 1024 * 1024

var (
	ErrAttachmentTooLarge = errors.New("attachment exceeds 10MB")
	ErrAttachmentType     = errors.New("attachment type not allowed")
	ErrAttachmentEmpty    = errors.New("attachment is empty")
	ErrUploadFailed       = errors.New("attachment upload failed")
)

var allowedMIMETypes = map[string]struct{}{
	"image/jpeg":         {},
	"image/png":          {},
	"image/gif":          {},
	"image/webp":         {},
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
	"text/plain": {},
}

// Upload is a file to attach to a message.
type Upload struct {
	FileName string
	MimeType string
	Data     []byte
	RoomID   string
}

type uploadRequest struct {
	FileBuffer string `json:"fileBuffer"`
	FileName   string `json:"fileName"`
	MimeType   string `json:"mimeType"`
	FileSize   int64  `json:"fileSize"`
	RoomID     string `json:"roomId,omitempty"`
}

type uploadReply struct {
	URL      string                `json:"url"`
	Type     models.AttachmentKind `json:"type"`
	MimeType string                `json:"mimeType"`
	FileName string                `json:"fileName"`
	FileSize int64                 `json:"fileSize"`
	Message  string                `json:"message"`
	Error    string                `json:"error"`
}

// ValidateUpload checks size and type, sniffing the type when none is given.
// It returns the effective MIME type.
func ValidateUpload(u Upload) (string, error) {
	if len(u.Data) == 0 {
		return "", ErrAttachmentEmpty
	}
	if len(u.Data) > MaxAttachmentSize {
		return "", ErrAttachmentTooLarge
	}
	mime := strings.ToLower(strings.TrimSpace(u.MimeType))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	// octet-stream is treated as unknown.
	if mime == "" || mime == "application/octet-stream" {
		detected := mimetype.Detect(u.Data)
		mime = detected.String()
		if i := strings.IndexByte(mime, ';'); i >= 0 {
			mime = mime[:i]
		}
	}
	if _, ok := allowedMIMETypes[mime]; !ok {
		return "", fmt.Errorf("%w: %s", ErrAttachmentType, mime)
	}
	return mime, nil
}

// UploadAttachment validates u and sends it as a base64 data URL. The reply
// is the first of upload_success or upload_error.
func (c *Client) UploadAttachment(ctx context.Context, u Upload) (models.Attachment, error) {
	mime, err := ValidateUpload(u)
	if err != nil {
		return models.Attachment{}, err
	}

	req := uploadRequest{
		FileBuffer: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(u.Data),
		FileName:   u.FileName,
		MimeType:   mime,
		FileSize:   int64(len(u.Data)),
		RoomID:     u.RoomID,
	}
	reply, err := c.Request(ctx, EmitUploadChatAttachment, req, []string{EventUploadSuccess, EventUploadError}, nil)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("upload %s: %w", u.FileName, err)
	}

	var body uploadReply
	if err := json.Unmarshal(reply.Data, &body); err != nil {
		return models.Attachment{}, fmt.Errorf("decode upload reply: %w", err)
	}
	if reply.Event == EventUploadError {
		msg := body.Message
		if msg == "" {
			msg = body.Error
		}
		if msg == "" {
			msg = "upload failed"
		}
		return models.Attachment{}, fmt.Errorf("%w: %s", ErrUploadFailed, msg)
	}

	att := models.Attachment{
		URL:      body.URL,
		MimeType: mime,
		FileName: u.FileName,
		FileSize: int64(len(u.Data)),
		Type:     models.AttachmentDocument,
	}
	if body.FileName != "" {
		att.FileName = body.FileName
	}
	if body.MimeType != "" {
		att.MimeType = body.MimeType
	}
	if body.FileSize > 0 {
		att.FileSize = body.FileSize
	}
	switch {
	case body.Type == models.AttachmentImage || body.Type == models.AttachmentDocument:
		att.Type = body.Type
	case strings.HasPrefix(att.MimeType, "image/"):
		att.Type = models.AttachmentImage
	}
	return att, nil
}
