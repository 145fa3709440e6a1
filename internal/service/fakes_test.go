package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"slidedrop/internal/convert"
	"slidedrop/internal/events"
	"slidedrop/internal/repository"
	"slidedrop/internal/storage"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const cdnBase = "https://cdn.test/"

type memObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// memStore 是线程安全的内存对象存储。
type memStore struct {
	mu         sync.Mutex
	objects    map[string]memObject
	writes     []string
	deletes    []string
	failWrite  func(key string) error
	failDelete func(key string) error
	now        func() time.Time

	// writeDelay 让并发写入在时间上重叠，便于统计同时在途的上传数
	writeDelay  time.Duration
	inFlight    int
	maxInFlight int
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string]memObject), now: func() time.Time { return testNow }}
}

func (m *memStore) put(key string, data []byte, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{data: data, modified: modified}
}

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func (m *memStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *memStore) peakWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

func (m *memStore) Write(ctx context.Context, key string, r io.Reader, contentType string) (storage.Location, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.Location{}, err
	}

	m.mu.Lock()
	m.inFlight++
	m.maxInFlight = max(m.maxInFlight, m.inFlight)
	delay := m.writeDelay
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--
	m.writes = append(m.writes, key)
	if m.failWrite != nil {
		if err := m.failWrite(key); err != nil {
			return storage.Location{}, err
		}
	}
	m.objects[key] = memObject{data: data, contentType: contentType, modified: m.now()}
	return storage.Location{Path: key, URL: cdnBase + key}, nil
}

func (m *memStore) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, key)
	if m.failDelete != nil {
		if err := m.failDelete(key); err != nil {
			return err
		}
	}
	delete(m.objects, key)
	return nil
}

func (m *memStore) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ObjectInfo
	for k, obj := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.ObjectInfo{Key: k, Size: int64(len(obj.data)), LastModified: obj.modified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memStore) KeyForURL(rawURL string) (string, bool) {
	if !strings.HasPrefix(rawURL, cdnBase) {
		return "", false
	}
	return strings.TrimPrefix(rawURL, cdnBase), true
}

// memDecks 是内存中的 deck 仓储。
type memDecks struct {
	mu      sync.Mutex
	records map[string]repository.DeckRecord
	updates int
	reads   int
}

func newMemDecks(seed ...repository.DeckRecord) *memDecks {
	m := &memDecks{records: make(map[string]repository.DeckRecord)}
	for _, r := range seed {
		m.records[r.ID] = r
	}
	return m
}

func (m *memDecks) get(id string) repository.DeckRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

func (m *memDecks) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func (m *memDecks) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memDecks) Create(ctx context.Context, r *repository.DeckRecord) (*repository.DeckRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.records {
		if existing.OwnerID == r.OwnerID && existing.Slug == r.Slug {
			return nil, repository.ErrConflict
		}
	}
	m.records[r.ID] = *r
	cp := *r
	return &cp, nil
}

func (m *memDecks) GetByID(ctx context.Context, id string) (*repository.DeckRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	r, ok := m.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (m *memDecks) GetBySlug(ctx context.Context, ownerID, slug string) (*repository.DeckRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	for _, r := range m.records {
		if r.OwnerID == ownerID && r.Slug == slug {
			cp := r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memDecks) ListByOwner(ctx context.Context, ownerID string, p repository.ListDecksParams) ([]repository.DeckRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.DeckRecord
	for _, r := range m.records {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if p.Offset >= len(out) {
		return nil, nil
	}
	out = out[p.Offset:]
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, nil
}

func (m *memDecks) ListOwnerIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, r := range m.records {
		if !seen[r.OwnerID] {
			seen[r.OwnerID] = true
			out = append(out, r.OwnerID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memDecks) Update(ctx context.Context, id string, u repository.DeckUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.updates++
	if u.Title != nil {
		r.Title = *u.Title
	}
	if u.Description != nil {
		r.Description = *u.Description
	}
	if u.FileURL != nil {
		r.FileURL = *u.FileURL
	}
	if u.FilePath != nil {
		r.FilePath = *u.FilePath
	}
	if u.Pages != nil {
		r.Pages = append([]repository.SlidePage(nil), (*u.Pages)...)
	}
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.FileType != nil {
		r.FileType = *u.FileType
	}
	if u.DisplayMode != nil {
		r.DisplayMode = *u.DisplayMode
	}
	if u.FileSize != nil {
		r.FileSize = *u.FileSize
	}
	if u.Access != nil {
		r.Access = u.Access
	}
	if u.ExpiresAt != nil {
		r.ExpiresAt = u.ExpiresAt
	}
	m.records[id] = r
	return nil
}

type fixedTiers map[string]Tier

func (f fixedTiers) Tier(ctx context.Context, userID string) (Tier, error) {
	return f[userID], nil
}

// fakeRasterizer 为每页返回 "page-n" 字节。
type fakeRasterizer struct {
	pages int
	err   error
	calls int
}

func (r *fakeRasterizer) Rasterize(ctx context.Context, src []byte, onPage func(page, total int)) ([][]byte, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	out := make([][]byte, r.pages)
	for i := range out {
		out[i] = []byte("page-" + string(rune('1'+i)))
		if onPage != nil {
			onPage(i+1, r.pages)
		}
	}
	return out, nil
}

func (r *fakeRasterizer) ContentType() string { return "image/webp" }

// fakeConverter 模拟转换适配器：写入页面并把记录置为 PROCESSED。
type fakeConverter struct {
	decks   *memDecks
	pages   int
	err     error
	release chan struct{}
	done    chan error
}

func (c *fakeConverter) ConvertRemote(ctx context.Context, deckID string) (*convert.Result, error) {
	if c.release != nil {
		<-c.release
	}
	err := c.run(ctx, deckID)
	if c.done != nil {
		c.done <- errors.Join(err, ctx.Err())
	}
	if err != nil {
		return nil, err
	}
	return &convert.Result{PageCount: c.pages}, nil
}

func (c *fakeConverter) run(ctx context.Context, deckID string) error {
	if c.err != nil {
		return c.err
	}
	pages := make([]repository.SlidePage, c.pages)
	for i := range pages {
		pages[i] = repository.SlidePage{ImageURL: cdnBase + "remote/" + string(rune('1'+i)), PageNumber: i + 1}
	}
	status := repository.DeckStatusProcessed
	return c.decks.Update(ctx, deckID, repository.DeckUpdate{Pages: &pages, Status: &status})
}

type recordingProgress struct {
	mu     sync.Mutex
	events []events.Progress
}

func (p *recordingProgress) Publish(ctx context.Context, ev events.Progress) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingProgress) stages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		if len(out) == 0 || out[len(out)-1] != ev.Stage {
			out = append(out, ev.Stage)
		}
	}
	return out
}
