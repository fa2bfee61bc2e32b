package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/any-hub/imagehub/internal/config"
	"github.com/any-hub/imagehub/internal/fetch"
	"github.com/any-hub/imagehub/internal/server"
)

const imageAddress = "https://example.com/a.png"

func TestCachesListsStats(t *testing.T) {
	app, registry := newRoutesApp(t)

	route, _ := registry.Lookup("thumbnails")
	if _, err := route.Cache.LoadImage(context.Background(), imageAddress); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/-/caches", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var payload struct {
		Caches []cachePayload `json:"caches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Caches) != 1 {
		t.Fatalf("expected 1 cache, got %d", len(payload.Caches))
	}
	got := payload.Caches[0]
	if got.Name != "thumbnails" || got.Mode != config.ModeReal {
		t.Fatalf("unexpected cache payload %+v", got)
	}
	if got.Stats.DiskFiles != 1 || got.Stats.MemoryEntries != 1 || got.Stats.NetworkFetches != 1 {
		t.Fatalf("unexpected stats %+v", got.Stats)
	}
	if !strings.HasSuffix(got.DiskUsage, "B") {
		t.Fatalf("expected humanized disk usage, got %q", got.DiskUsage)
	}
}

func TestCacheDetailUnknown(t *testing.T) {
	app, _ := newRoutesApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/caches/nope", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRefreshEndpointClearsCache(t *testing.T) {
	app, registry := newRoutesApp(t)

	route, _ := registry.Lookup("thumbnails")
	if _, err := route.Cache.LoadImage(context.Background(), imageAddress); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest("POST", "/-/caches/thumbnails/refresh", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d (%s)", resp.StatusCode, body)
	}

	var payload cachePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Stats.Generation != 1 {
		t.Fatalf("expected generation 1 after refresh, got %d", payload.Stats.Generation)
	}
	if payload.Stats.DiskFiles != 0 || payload.Stats.MemoryEntries != 0 {
		t.Fatalf("expected empty cache after refresh, got %+v", payload.Stats)
	}

	resp, err = app.Test(httptest.NewRequest("POST", "/-/caches/nope/refresh", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 for unknown cache, got %d", resp.StatusCode)
	}
}

func TestEncodeCachesEmpty(t *testing.T) {
	if got := encodeCaches(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func newRoutesApp(t *testing.T) (*fiber.App, *server.CacheRegistry) {
	t.Helper()

	body := pngBody(t)
	fetcher := fetch.FetcherFunc(func(_ context.Context, url string, _ fetch.Method) ([]byte, error) {
		if url == imageAddress {
			return body, nil
		}
		return nil, fetch.StatusCodeError(url, 404)
	})

	cfg := &config.Config{
		Global: config.GlobalConfig{StoragePath: "/srv/imagehub"},
		Caches: []config.CacheConfig{
			{Name: "thumbnails", Path: "thumbnails", Mode: config.ModeReal},
		},
	}
	registry, err := server.NewCacheRegistry(cfg, server.RegistryOptions{
		Fetcher: fetcher,
		Fs:      afero.NewMemMapFs(),
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app := fiber.New()
	RegisterCacheRoutes(app, registry, logger)
	return app, registry
}

func pngBody(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}
