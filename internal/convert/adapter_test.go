package convert

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"slidedrop/internal/repository"
	"slidedrop/internal/retry"
	"slidedrop/internal/storage"
)

type fakeDecks struct {
	deck    *repository.DeckRecord
	getErr  error
	updates []repository.DeckUpdate
	updErr  error
}

func (f *fakeDecks) Create(ctx context.Context, r *repository.DeckRecord) (*repository.DeckRecord, error) {
	return r, nil
}

func (f *fakeDecks) GetByID(ctx context.Context, id string) (*repository.DeckRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.deck == nil || f.deck.ID != id {
		return nil, repository.ErrNotFound
	}
	cp := *f.deck
	return &cp, nil
}

func (f *fakeDecks) GetBySlug(ctx context.Context, ownerID, slug string) (*repository.DeckRecord, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeDecks) ListByOwner(ctx context.Context, ownerID string, p repository.ListDecksParams) ([]repository.DeckRecord, error) {
	return nil, nil
}

func (f *fakeDecks) ListOwnerIDs(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeDecks) Update(ctx context.Context, id string, u repository.DeckUpdate) error {
	if f.updErr != nil {
		return f.updErr
	}
	f.updates = append(f.updates, u)
	return nil
}

type fakeReader struct {
	objects map[string][]byte
	reads   int
	flaky   int
}

func (r *fakeReader) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	r.reads++
	if r.reads <= r.flaky {
		return nil, errors.New("read tcp: connection reset by peer")
	}
	data, ok := r.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type fakeConverter struct {
	configured bool
	files      []ResultFile
	err        error
	gotExt     string
	gotName    string
}

func (c *fakeConverter) Configured() bool { return c.configured }

func (c *fakeConverter) Convert(ctx context.Context, ext, name string, data []byte) ([]ResultFile, error) {
	c.gotExt, c.gotName = ext, name
	return c.files, c.err
}

func (c *fakeConverter) Fetch(ctx context.Context, f ResultFile) ([]byte, error) {
	return []byte(f.FileData), nil
}

type fakeUploader struct {
	keys []string
	err  error
}

func (u *fakeUploader) UploadOne(ctx context.Context, key string, data []byte, contentType string) (storage.Location, error) {
	if u.err != nil {
		return storage.Location{}, u.err
	}
	if contentType != "image/jpeg" {
		return storage.Location{}, errors.New("unexpected content type " + contentType)
	}
	u.keys = append(u.keys, key)
	return storage.Location{Path: key, URL: "https://cdn/" + key}, nil
}

func officeDeck() *repository.DeckRecord {
	return &repository.DeckRecord{
		ID:       "d1",
		OwnerID:  "u1",
		Slug:     "talk",
		FileType: repository.FileTypePPTX,
		FilePath: "u1/decks/talk-1.pptx",
		Status:   repository.DeckStatusPending,
	}
}

var fastPolicy = retry.Policy{MaxRetries: 3}

func TestAdapter_ConvertRemote_Success(t *testing.T) {
	decks := &fakeDecks{deck: officeDeck()}
	reader := &fakeReader{objects: map[string][]byte{"u1/decks/talk-1.pptx": []byte("pptx")}, flaky: 1}
	conv := &fakeConverter{configured: true, files: []ResultFile{{FileData: "a"}, {FileData: "b"}, {FileData: "c"}}}
	up := &fakeUploader{}

	res, err := NewAdapter(decks, reader, conv, up, fastPolicy, nil).ConvertRemote(context.Background(), "d1")
	if err != nil {
		t.Fatalf("ConvertRemote returned error: %v", err)
	}
	if res.PageCount != 3 {
		t.Fatalf("expected 3 pages, got %d", res.PageCount)
	}
	if conv.gotExt != "pptx" || conv.gotName != "talk.pptx" {
		t.Fatalf("unexpected convert args %s %s", conv.gotExt, conv.gotName)
	}
	if reader.reads != 2 {
		t.Fatalf("expected transient read to be retried, reads=%d", reader.reads)
	}
	for i, key := range up.keys {
		want := "u1/deck-images/talk/page-" + string(rune('1'+i)) + ".jpg"
		if key != want {
			t.Fatalf("upload %d: expected %s, got %s", i, want, key)
		}
	}
	if len(decks.updates) != 1 {
		t.Fatalf("expected exactly one record update, got %d", len(decks.updates))
	}
	upd := decks.updates[0]
	if upd.Status == nil || *upd.Status != repository.DeckStatusProcessed {
		t.Fatal("expected status PROCESSED")
	}
	if upd.Pages == nil || len(*upd.Pages) != 3 || (*upd.Pages)[2].PageNumber != 3 {
		t.Fatalf("unexpected pages %+v", upd.Pages)
	}
}

func TestAdapter_ConvertRemote_Errors(t *testing.T) {
	cases := []struct {
		name   string
		decks  *fakeDecks
		reader *fakeReader
		conv   *fakeConverter
		up     *fakeUploader
		deckID string
		want   Code
	}{
		{
			name:   "not configured",
			decks:  &fakeDecks{deck: officeDeck()},
			reader: &fakeReader{},
			conv:   &fakeConverter{},
			up:     &fakeUploader{},
			deckID: "d1",
			want:   CodeConfig,
		},
		{
			name:   "missing deck",
			decks:  &fakeDecks{},
			reader: &fakeReader{},
			conv:   &fakeConverter{configured: true},
			up:     &fakeUploader{},
			deckID: "d1",
			want:   CodeNotFound,
		},
		{
			name:   "missing source",
			decks:  &fakeDecks{deck: officeDeck()},
			reader: &fakeReader{objects: map[string][]byte{}},
			conv:   &fakeConverter{configured: true},
			up:     &fakeUploader{},
			deckID: "d1",
			want:   CodeNotFound,
		},
		{
			name:   "service error",
			decks:  &fakeDecks{deck: officeDeck()},
			reader: &fakeReader{objects: map[string][]byte{"u1/decks/talk-1.pptx": []byte("x")}},
			conv:   &fakeConverter{configured: true, err: &APIError{Status: 400, Message: "bad file"}},
			up:     &fakeUploader{},
			deckID: "d1",
			want:   CodeConversion,
		},
		{
			name:   "empty result",
			decks:  &fakeDecks{deck: officeDeck()},
			reader: &fakeReader{objects: map[string][]byte{"u1/decks/talk-1.pptx": []byte("x")}},
			conv:   &fakeConverter{configured: true},
			up:     &fakeUploader{},
			deckID: "d1",
			want:   CodeEmptyResult,
		},
		{
			name:   "upload failure",
			decks:  &fakeDecks{deck: officeDeck()},
			reader: &fakeReader{objects: map[string][]byte{"u1/decks/talk-1.pptx": []byte("x")}},
			conv:   &fakeConverter{configured: true, files: []ResultFile{{FileData: "a"}}},
			up:     &fakeUploader{err: errors.New("quota exceeded")},
			deckID: "d1",
			want:   CodeUpload,
		},
		{
			name:   "record failure",
			decks:  &fakeDecks{deck: officeDeck(), updErr: errors.New("constraint violated")},
			reader: &fakeReader{objects: map[string][]byte{"u1/decks/talk-1.pptx": []byte("x")}},
			conv:   &fakeConverter{configured: true, files: []ResultFile{{FileData: "a"}}},
			up:     &fakeUploader{},
			deckID: "d1",
			want:   CodeRecord,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAdapter(tc.decks, tc.reader, tc.conv, tc.up, fastPolicy, nil)
			_, err := a.ConvertRemote(context.Background(), tc.deckID)
			var ce *Error
			if !errors.As(err, &ce) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if ce.Code != tc.want {
				t.Fatalf("expected code %s, got %s (%v)", tc.want, ce.Code, err)
			}
			if tc.want != CodeRecord && len(tc.decks.updates) != 0 {
				t.Fatal("record must not be touched on failure")
			}
		})
	}
}
