// Package media compresses chat image attachments before storage.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
	_ "image/gif"               // Register GIF decoder
	_ "image/png"               // Register PNG decoder

	"jurutani/internal/models"
	"jurutani/internal/storage"
)

const (
	DefaultMaxWidth    = 800
	DefaultMaxHeight   = 600
	DefaultJPEGQuality = 80
	DefaultMaxUploadMB = 10
	attachmentBucket   = "chat-images"
)

// Upload is a raw attachment handed to the pipeline.
type Upload struct {
	Filename string
	Data     []byte
}

// StoredImage describes a processed attachment after storage.
type StoredImage struct {
	Path   string
	URL    string
	Width  int
	Height int
	Size   int64
}

// Pipeline validates, downscales and re-encodes attachments, then hands the
// result to the object store. Every stored attachment is a JPEG bounded by
// the configured box regardless of input format.
type Pipeline struct {
	store       storage.ObjectStore
	maxBytes    int64
	maxWidth    int
	maxHeight   int
	jpegQuality int

	// now is swappable for deterministic object paths in tests.
	now func() time.Time
}

// NewPipeline creates an attachment pipeline over the given object store.
// Non-positive bounds fall back to the defaults.
func NewPipeline(store storage.ObjectStore, maxUploadMB, maxWidth, maxHeight, quality int) *Pipeline {
	if maxUploadMB <= 0 {
		maxUploadMB = DefaultMaxUploadMB
	}
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	if maxHeight <= 0 {
		maxHeight = DefaultMaxHeight
	}
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &Pipeline{
		store:       store,
		maxBytes:    int64(maxUploadMB) * 1024 * 1024,
		maxWidth:    maxWidth,
		maxHeight:   maxHeight,
		jpegQuality: quality,
		now:         time.Now,
	}
}

// Process validates and stores the attachment for the sender. Validation
// failures surface as INVALID_FILE or TOO_LARGE before anything is written;
// storage failures surface as UPLOAD_FAILED.
func (p *Pipeline) Process(ctx context.Context, senderID string, in Upload) (*StoredImage, error) {
	if senderID == "" {
		return nil, models.NewNotAuthenticatedError()
	}
	if len(in.Data) == 0 {
		return nil, models.NewInvalidFileError("No file uploaded")
	}
	if !hasAllowedExtension(in.Filename) {
		return nil, models.NewInvalidFileError("Please select an image file (JPEG, PNG, GIF, or WebP)")
	}
	if int64(len(in.Data)) > p.maxBytes {
		return nil, models.NewTooLargeError(int(p.maxBytes / (1024 * 1024)))
	}

	// Trust the bytes over the filename.
	if !isAllowedImageMIME(http.DetectContentType(in.Data)) {
		return nil, models.NewInvalidFileError("Invalid image type")
	}

	decoded, format, err := image.Decode(bytes.NewReader(in.Data))
	if err != nil {
		return nil, models.NewInvalidFileError("Invalid image file")
	}
	if !isSupportedDecodedFormat(format) {
		return nil, models.NewInvalidFileError("Unsupported image format")
	}

	compressed := resizeToFit(decoded, p.maxWidth, p.maxHeight)
	encoded, err := encodeJPEG(compressed, p.jpegQuality)
	if err != nil {
		return nil, models.NewUploadFailedError(err)
	}

	objectPath := p.objectPath(senderID)
	if err := p.store.Put(objectPath, encoded); err != nil {
		return nil, models.NewUploadFailedError(err)
	}

	bounds := compressed.Bounds()
	return &StoredImage{
		Path:   objectPath,
		URL:    p.store.PublicURL(objectPath),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Size:   int64(len(encoded)),
	}, nil
}

// Remove deletes a stored attachment. Failures are logged and swallowed;
// an orphaned object never blocks message deletion.
func (p *Pipeline) Remove(ctx context.Context, objectPath string) {
	if objectPath == "" {
		return
	}
	if err := p.store.Remove(objectPath); err != nil {
		slog.WarnContext(ctx, "failed to remove attachment",
			slog.String("path", objectPath),
			slog.String("error", err.Error()),
		)
	}
}

// objectPath builds "<bucket>/<senderID>/<unix-millis>.jpg". The output is
// always JPEG, so the stored extension is fixed independent of the input.
func (p *Pipeline) objectPath(senderID string) string {
	return path.Join(attachmentBucket, senderID, fmt.Sprintf("%d.jpg", p.now().UnixMilli()))
}

func hasAllowedExtension(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	switch ext {
	case "jpg", "jpeg", "png", "gif", "webp":
		return true
	default:
		return false
	}
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scaleW := float64(maxWidth) / float64(w)
	scaleH := float64(maxHeight) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAllowedImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func isSupportedDecodedFormat(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg", "png", "gif", "webp":
		return true
	default:
		return false
	}
}
