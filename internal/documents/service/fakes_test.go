package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"sort"
	"sync"
	"time"

	"crm_backend/internal/adapters/storage"
	"crm_backend/internal/documents/domain"
	"crm_backend/internal/documents/repository"
	"crm_backend/internal/events"

	"github.com/google/uuid"
)

type fakeRepo struct {
	mu        sync.Mutex
	docs      map[uuid.UUID]domain.Document
	links     map[string]domain.ShareLink
	conflicts int
	dupTokens int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		docs:  make(map[uuid.UUID]domain.Document),
		links: make(map[string]domain.ShareLink),
	}
}

// clone detaches the slices so callers cannot mutate stored state.
func clone(d domain.Document) domain.Document {
	raw, err := json.Marshal(d)
	if err != nil {
		panic(err)
	}
	var out domain.Document
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}

func (f *fakeRepo) Create(_ context.Context, d *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[d.ID] = clone(*d)
	return nil
}

func (f *fakeRepo) Save(_ context.Context, d *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.docs[d.ID]
	if !ok || stored.TenantID != d.TenantID {
		return repository.ErrNotFound
	}
	if f.conflicts > 0 {
		f.conflicts--
		stored.Version++
		f.docs[d.ID] = stored
		return repository.ErrConflict
	}
	if stored.Version != d.Version {
		return repository.ErrConflict
	}
	d.Version++
	f.docs[d.ID] = clone(*d)
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID, tenantID uuid.UUID) (domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok || d.TenantID != tenantID {
		return domain.Document{}, repository.ErrNotFound
	}
	return clone(d), nil
}

func (f *fakeRepo) ListByLead(_ context.Context, tenantID uuid.UUID, leadID uuid.UUID) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Document{}
	for _, d := range f.docs {
		if d.TenantID == tenantID && d.LeadID != nil && *d.LeadID == leadID {
			out = append(out, clone(d))
		}
	}
	return out, nil
}

func (f *fakeRepo) ListTrending(_ context.Context, tenantID uuid.UUID, since time.Time, limit int) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Document{}
	for _, d := range f.docs {
		if d.TenantID == tenantID && d.LastViewedAt != nil && !d.LastViewedAt.Before(since) && d.Status != domain.StatusArchived {
			out = append(out, clone(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ViewCount > out[j].ViewCount })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) CreateShareLink(_ context.Context, l *domain.ShareLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dupTokens > 0 {
		f.dupTokens--
		return repository.ErrDuplicateToken
	}
	if _, exists := f.links[l.Token]; exists {
		return repository.ErrDuplicateToken
	}
	f.links[l.Token] = *l
	return nil
}

func (f *fakeRepo) GetShareLink(_ context.Context, token string) (domain.ShareLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[token]
	if !ok {
		return domain.ShareLink{}, repository.ErrShareLinkNotFound
	}
	return l, nil
}

func (f *fakeRepo) ListShareLinks(_ context.Context, documentID uuid.UUID, tenantID uuid.UUID) ([]domain.ShareLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.ShareLink{}
	for _, l := range f.links {
		if l.DocumentID == documentID && l.TenantID == tenantID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepo) ConsumeShareLinkView(_ context.Context, token string, now time.Time) (domain.ShareLink, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[token]
	if !ok || !l.IsActive || (l.ExpiresAt != nil && !l.ExpiresAt.After(now)) || (l.MaxViews != nil && l.CurrentViews >= *l.MaxViews) {
		return domain.ShareLink{}, false, nil
	}
	l.CurrentViews++
	f.links[token] = l
	return l, true, nil
}

func (f *fakeRepo) RevokeShareLink(_ context.Context, documentID uuid.UUID, tenantID uuid.UUID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[token]
	if !ok || l.DocumentID != documentID || l.TenantID != tenantID {
		return repository.ErrShareLinkNotFound
	}
	l.IsActive = false
	f.links[token] = l
	return nil
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (m *memoryStore) Put(_ context.Context, folder, fileName, _ string, reader io.Reader, _ int64) (storage.StoredFile, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return storage.StoredFile{}, err
	}
	sum := sha256.Sum256(data)
	key := folder + "/" + fileName
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return storage.StoredFile{Key: key, Size: int64(len(data)), Checksum: hex.EncodeToString(sum[:])}, nil
}

func (m *memoryStore) PresignDownload(_ context.Context, fileKey string) (storage.PresignedURL, error) {
	return storage.PresignedURL{URL: "https://files.example.com/" + fileKey, FileKey: fileKey}, nil
}

func (m *memoryStore) Delete(_ context.Context, fileKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, fileKey)
	return nil
}

type engagementRecorder struct {
	mu    sync.Mutex
	views []string
}

func (r *engagementRecorder) OnDocumentViewed(_ context.Context, _ uuid.UUID, leadID uuid.UUID, category string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, leadID.String()+":"+category)
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.EventName() == name {
			n++
		}
	}
	return n
}

type sequenceTokens struct {
	n int
}

func (s *sequenceTokens) Token() (string, error) {
	s.n++
	return "token-" + string(rune('a'+s.n-1)), nil
}
