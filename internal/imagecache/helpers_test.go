package imagecache

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/imagehub/internal/fetch"
	"github.com/any-hub/imagehub/internal/logging"
)

const testRoot = "/var/cache/imagehub"

// fakeFetcher serves canned bodies and counts calls per URL. When release is
// set, Fetch blocks until it is closed or the context is done.
type fakeFetcher struct {
	mu     sync.Mutex
	calls  map[string]int
	bodies map[string][]byte
	errs   map[string]error

	started   chan string
	release   chan struct{}
	sawCancel chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:  make(map[string]int),
		bodies: make(map[string][]byte),
		errs:   make(map[string]error),
	}
}

func (f *fakeFetcher) blocking() *fakeFetcher {
	f.started = make(chan string, 16)
	f.release = make(chan struct{})
	f.sawCancel = make(chan struct{})
	return f
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, method fetch.Method) ([]byte, error) {
	f.mu.Lock()
	f.calls[url]++
	body, hasBody := f.bodies[url]
	err := f.errs[url]
	f.mu.Unlock()

	if f.started != nil {
		f.started <- url
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			close(f.sawCancel)
			return nil, fetch.CancelledError(url, ctx.Err())
		}
	}

	if err != nil {
		return nil, err
	}
	if !hasBody {
		return nil, fetch.StatusCodeError(url, 404)
	}
	return body, nil
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func newTestStore(t *testing.T, fs afero.Fs, fetcher fetch.Fetcher, logger logrus.FieldLogger) *Store {
	t.Helper()
	if logger == nil {
		logger = logging.Discard()
	}
	store, err := New(Options{
		Name:    "thumbnails",
		Root:    testRoot,
		Path:    "thumbnails",
		Fetcher: fetcher,
		Fs:      fs,
		Logger:  logger,
	})
	require.NoError(t, err)
	return store
}

func diskPath(t *testing.T, store *Store, address string) string {
	t.Helper()
	name, err := EncodeAddress(address)
	require.NoError(t, err)
	return store.dir.FilePath(name)
}

func requireSamePixels(t *testing.T, want, got image.Image) {
	t.Helper()
	require.Equal(t, want.Bounds(), got.Bounds())
	b := want.Bounds()
	for x := b.Min.X; x < b.Max.X; x++ {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			wr, wg, wb, wa := want.At(x, y).RGBA()
			gr, gg, gb, ga := got.At(x, y).RGBA()
			require.Equal(t, [4]uint32{wr, wg, wb, wa}, [4]uint32{gr, gg, gb, ga}, "pixel %d,%d", x, y)
		}
	}
}
