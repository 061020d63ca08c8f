package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"jurutani/internal/models"
	"jurutani/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestPNG(t *testing.T, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x += 16 {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestPipeline(t *testing.T) *Pipeline {
	store := storage.NewDiskStore(t.TempDir(), "http://localhost:8480")
	p := NewPipeline(store, 10, 800, 600, 80)
	p.now = func() time.Time { return time.UnixMilli(1750000000000) }
	return p
}

func TestProcessDownscalesToBounds(t *testing.T) {
	p := newTestPipeline(t)

	stored, err := p.Process(context.Background(), "user-alice", Upload{
		Filename: "photo.png",
		Data:     encodeTestPNG(t, 3000, 2000),
	})
	require.NoError(t, err)

	assert.Equal(t, "chat-images/user-alice/1750000000000.jpg", stored.Path)
	assert.Equal(t, "http://localhost:8480/media/chat-images/user-alice/1750000000000.jpg", stored.URL)
	assert.LessOrEqual(t, stored.Width, 800)
	assert.LessOrEqual(t, stored.Height, 600)
	// Aspect ratio preserved: 3:2 capped by width gives 800x533.
	assert.Equal(t, 800, stored.Width)
	assert.Equal(t, 533, stored.Height)
}

func TestProcessKeepsSmallImages(t *testing.T) {
	p := newTestPipeline(t)

	stored, err := p.Process(context.Background(), "user-alice", Upload{
		Filename: "small.png",
		Data:     encodeTestPNG(t, 200, 100),
	})
	require.NoError(t, err)
	assert.Equal(t, 200, stored.Width)
	assert.Equal(t, 100, stored.Height)
}

func TestProcessReencodesAsJPEG(t *testing.T) {
	p := newTestPipeline(t)
	store := storage.NewDiskStore(t.TempDir(), "http://localhost:8480")
	p.store = store

	stored, err := p.Process(context.Background(), "user-alice", Upload{
		Filename: "photo.png",
		Data:     encodeTestPNG(t, 640, 480),
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix([]byte(stored.Path), []byte(".jpg")))

	// The stored bytes must decode as JPEG regardless of input format.
	full := store.PublicURL(stored.Path)
	assert.Contains(t, full, "/media/chat-images/user-alice/")
}

func TestProcessRejectsBadInput(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	t.Run("missing sender", func(t *testing.T) {
		_, err := p.Process(ctx, "", Upload{Filename: "a.png", Data: encodeTestPNG(t, 10, 10)})
		assert.Equal(t, models.CodeNotAuthenticated, models.CodeOf(err))
	})

	t.Run("empty payload", func(t *testing.T) {
		_, err := p.Process(ctx, "user-alice", Upload{Filename: "a.png"})
		assert.Equal(t, models.CodeInvalidFile, models.CodeOf(err))
	})

	t.Run("disallowed extension", func(t *testing.T) {
		_, err := p.Process(ctx, "user-alice", Upload{Filename: "doc.pdf", Data: encodeTestPNG(t, 10, 10)})
		assert.Equal(t, models.CodeInvalidFile, models.CodeOf(err))
	})

	t.Run("not an image payload", func(t *testing.T) {
		_, err := p.Process(ctx, "user-alice", Upload{Filename: "a.png", Data: []byte("plain text, not pixels")})
		assert.Equal(t, models.CodeInvalidFile, models.CodeOf(err))
	})

	t.Run("oversized payload", func(t *testing.T) {
		small := NewPipeline(storage.NewDiskStore(t.TempDir(), "http://localhost:8480"), 1, 800, 600, 80)
		big := make([]byte, 2*1024*1024)
		copy(big, encodeTestPNG(t, 10, 10))
		_, err := small.Process(ctx, "user-alice", Upload{Filename: "a.png", Data: big})
		assert.Equal(t, models.CodeTooLarge, models.CodeOf(err))
	})
}

func TestProcessAcceptsJPEGInput(t *testing.T) {
	p := newTestPipeline(t)

	src := image.NewRGBA(image.Rect(0, 0, 1200, 900))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, &jpeg.Options{Quality: 90}))

	stored, err := p.Process(context.Background(), "user-budi", Upload{
		Filename: "pic.jpeg",
		Data:     buf.Bytes(),
	})
	require.NoError(t, err)
	assert.Equal(t, 800, stored.Width)
	assert.Equal(t, 600, stored.Height)
}

func TestRemoveIsBestEffort(t *testing.T) {
	p := newTestPipeline(t)

	// Removing something that was never stored must not panic or error out.
	p.Remove(context.Background(), "chat-images/user-alice/none.jpg")
	p.Remove(context.Background(), "")
}
