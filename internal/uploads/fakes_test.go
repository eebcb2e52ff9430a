package uploads

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"postmedia/internal/config"
	"postmedia/internal/storage"
	"postmedia/internal/telemetry"

	"go.opentelemetry.io/otel/metric/noop"
)

type putCall struct {
	Key          string
	ContentType  string
	CacheControl string
}

// spyBlobStore records every call and keeps blobs in memory.
type spyBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []putCall
	deletes []string
	failPut error
	failKey string // Put on this key alone fails with errBackendDown
}

func newSpyBlobStore() *spyBlobStore {
	return &spyBlobStore{objects: map[string][]byte{}}
}

func (s *spyBlobStore) Put(_ context.Context, key string, data []byte, contentType, cacheControl string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut != nil {
		return "", s.failPut
	}
	if s.failKey != "" && key == s.failKey {
		return "", errBackendDown
	}
	s.puts = append(s.puts, putCall{key, contentType, cacheControl})
	s.objects[key] = data
	return "/uploads/" + key, nil
}

func (s *spyBlobStore) Get(_ context.Context, key string) (*storage.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.Blob{Data: data}, nil
}

func (s *spyBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, key)
	delete(s.objects, key)
	return nil
}

func (s *spyBlobStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.puts)
}

func (s *spyBlobStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// memPostStore is an in-memory PostStore with the same quota rules as the sqlite one.
type memPostStore struct {
	mu      sync.Mutex
	nextID  int64
	nextImg int64
	posts   map[int64]*storage.Post
}

var _ storage.PostStore = (*memPostStore)(nil)

func newMemPostStore() *memPostStore {
	return &memPostStore{posts: map[int64]*storage.Post{}}
}

func (m *memPostStore) CreatePost(_ context.Context, post *storage.Post) (*storage.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p := &storage.Post{ID: m.nextID, UserID: post.UserID, Title: post.Title, Content: post.Content, CreatedAt: time.Now()}
	m.posts[p.ID] = p
	m.appendLocked(p, post.Images)
	cp := *p
	return &cp, nil
}

func (m *memPostStore) GetPost(_ context.Context, postID int64) (*storage.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[postID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	cp.Images = append([]storage.PostImage(nil), p.Images...)
	return &cp, nil
}

func (m *memPostStore) PostExists(_ context.Context, postID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.posts[postID]
	return ok, nil
}

func (m *memPostStore) GetImageCount(_ context.Context, postID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[postID]
	if !ok {
		return 0, nil
	}
	return len(p.Images), nil
}

func (m *memPostStore) AppendImages(_ context.Context, postID int64, images []storage.PostImage) ([]storage.PostImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[postID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	m.appendLocked(p, images)
	return append([]storage.PostImage(nil), p.Images...), nil
}

func (m *memPostStore) appendLocked(p *storage.Post, images []storage.PostImage) {
	remaining := max(0, storage.MaxImagesPerPost-len(p.Images))
	for _, img := range images[:min(remaining, len(images))] {
		m.nextImg++
		img.ID = m.nextImg
		img.PostID = p.ID
		p.Images = append(p.Images, img)
	}
	if len(p.Images) > 0 {
		cover := p.Images[0].ImageURL
		p.ImageURL = &cover
	}
}

func (m *memPostStore) DeletePost(_ context.Context, postID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[postID]; !ok {
		return storage.ErrNotFound
	}
	delete(m.posts, postID)
	return nil
}

func (m *memPostStore) Close() error { return nil }

// racingPostStore attaches intruder right before every append, as a writer in another process would.
type racingPostStore struct {
	*memPostStore
	intruder storage.PostImage
}

func (r *racingPostStore) AppendImages(ctx context.Context, postID int64, images []storage.PostImage) ([]storage.PostImage, error) {
	if _, err := r.memPostStore.AppendImages(ctx, postID, []storage.PostImage{r.intruder}); err != nil {
		return nil, err
	}
	return r.memPostStore.AppendImages(ctx, postID, images)
}

func (m *memPostStore) seed(t *testing.T, images int) int64 {
	t.Helper()
	list := make([]storage.PostImage, images)
	for i := range list {
		list[i] = storage.PostImage{ImageURL: "/uploads/seed-" + string(rune('a'+i)) + ".jpg"}
	}
	p, err := m.CreatePost(context.Background(), &storage.Post{UserID: 1, Title: "seed", Content: "seed", Images: list})
	if err != nil {
		t.Fatal(err)
	}
	return p.ID
}

func testMetrics(t *testing.T) *telemetry.Metrics {
	t.Helper()
	m, err := telemetry.NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func testImagesOptions() config.ImagesOptions {
	return config.ImagesOptions{
		Enabled:         true,
		Quality:         80,
		PreferredFormat: "jpeg",
		Max:             config.ImageSize{Width: 120, Height: 120},
		Preview:         config.ImageSize{Width: 60, Height: 60},
		Thumb:           config.ImageSize{Width: 20, Height: 20},
		MaxUploadBytes:  1 << 20,
		MaxPixels:       1_000_000,
		Workers:         2,
	}
}

func newTestService(t *testing.T, opts config.ImagesOptions) (*Service, *memPostStore, *spyBlobStore) {
	t.Helper()
	posts := newMemPostStore()
	blobs := newSpyBlobStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(opts, posts, blobs, testMetrics(t), logger), posts, blobs
}

func jpegUpload(t *testing.T, name string, w, h int) FileUpload {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return BytesUpload(name, "image/jpeg", buf.Bytes())
}

func pngUpload(t *testing.T, name string, w, h int) FileUpload {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return BytesUpload(name, "image/png", buf.Bytes())
}

var errBackendDown = errors.New("backend down")

func decodeConfig(data []byte) (image.Config, string, error) {
	return image.DecodeConfig(bytes.NewReader(data))
}
