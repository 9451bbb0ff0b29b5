package letras

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/carnavalix/carnavalplay/internal/db"
)

type stubLetraStore struct {
	existing map[string]bool
	rows     map[int64]*db.Letra
	batches  [][]db.CreateLetraParams
	setCalls []int64
	pending  []*db.Letra
	failNext bool
	onCreate func()
}

func newStubLetraStore() *stubLetraStore {
	return &stubLetraStore{
		existing: map[string]bool{},
		rows:     map[int64]*db.Letra{},
	}
}

func (s *stubLetraStore) ExistsBySource(_ context.Context, sourceURL string) (bool, error) {
	return s.existing[sourceURL], nil
}

func (s *stubLetraStore) CreateBatch(_ context.Context, batch []db.CreateLetraParams) error {
	if s.onCreate != nil {
		s.onCreate()
	}
	if s.failNext {
		s.failNext = false
		return errors.New("insert failed")
	}
	copied := make([]db.CreateLetraParams, len(batch))
	copy(copied, batch)
	s.batches = append(s.batches, copied)
	for _, p := range batch {
		s.existing[p.SourceURL] = true
	}
	return nil
}

func (s *stubLetraStore) GetByID(_ context.Context, id int64) (*db.Letra, error) {
	row, ok := s.rows[id]
	if !ok {
		return nil, db.ErrLetraNotFound
	}
	return row, nil
}

func (s *stubLetraStore) SetContent(_ context.Context, id int64, content, title, pieceType string) error {
	s.setCalls = append(s.setCalls, id)
	if row, ok := s.rows[id]; ok {
		row.Content = content
	}
	return nil
}

func (s *stubLetraStore) WithoutContent(_ context.Context, limit int) ([]*db.Letra, error) {
	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

type stubArchive struct {
	pages      map[int]*ListPage
	listErrs   map[int]int // page -> remaining failures
	detail     map[string]*RemoteLetra
	detailErr  error
	listCalls  int
	fetchCalls int
}

func (a *stubArchive) List(_ context.Context, page int, _ ListFilters) (*ListPage, error) {
	a.listCalls++
	if remaining := a.listErrs[page]; remaining > 0 {
		a.listErrs[page] = remaining - 1
		return nil, errors.New("upstream 500")
	}
	if p, ok := a.pages[page]; ok {
		return p, nil
	}
	return &ListPage{Page: page}, nil
}

func (a *stubArchive) DetailURL(id int64) string {
	return fmt.Sprintf("https://archive.example/api/letra/%d", id)
}

func (a *stubArchive) FetchDetail(_ context.Context, sourceURL string) (*RemoteLetra, error) {
	a.fetchCalls++
	if a.detailErr != nil {
		return nil, a.detailErr
	}
	if d, ok := a.detail[sourceURL]; ok {
		return d, nil
	}
	return nil, errors.New("not found")
}

func year(y int) *int { return &y }

func src(u string) *string { return &u }

func TestImportMetadataDedupByDetailURL(t *testing.T) {
	store := newStubLetraStore()
	store.existing["https://archive.example/api/letra/1"] = true

	archive := &stubArchive{pages: map[int]*ListPage{
		1: {
			Letras: []RemoteLetra{
				{ID: 1, Title: "Pasodoble a Cádiz", PieceType: "pasodoble", Year: year(2024)},
				{ID: 2, Title: "Cuplé del puente", PieceType: "cuple", Year: year(2024)},
			},
			Page:       1,
			TotalPages: 1,
		},
	}}

	imp := New(store, archive)
	snap, err := imp.ImportMetadata(context.Background(), ImportParams{})
	if err != nil {
		t.Fatalf("ImportMetadata: %v", err)
	}
	if snap.Imported != 1 || snap.Skipped != 1 {
		t.Errorf("snapshot = %+v, want imported 1 skipped 1", snap)
	}
	if len(store.batches) != 1 || len(store.batches[0]) != 1 {
		t.Fatalf("batches = %+v", store.batches)
	}
	// The dedup key is the detail URL computed from the listing id.
	if got := store.batches[0][0].SourceURL; got != "https://archive.example/api/letra/2" {
		t.Errorf("stored source url = %q", got)
	}
}

func TestImportMetadataSkipsItemsWithoutID(t *testing.T) {
	archive := &stubArchive{pages: map[int]*ListPage{
		1: {
			Letras:     []RemoteLetra{{Title: "Sin id"}, {ID: 5, Title: "Con id"}},
			TotalPages: 1,
		},
	}}

	imp := New(newStubLetraStore(), archive)
	snap, err := imp.ImportMetadata(context.Background(), ImportParams{})
	if err != nil {
		t.Fatalf("ImportMetadata: %v", err)
	}
	if snap.Imported != 1 || snap.Skipped != 1 {
		t.Errorf("snapshot = %+v, want imported 1 skipped 1", snap)
	}
}

func TestImportMetadataCountsPerItem(t *testing.T) {
	store := newStubLetraStore()
	archive := &stubArchive{pages: map[int]*ListPage{
		1: {
			Letras: []RemoteLetra{
				{ID: 1, Title: "Uno"},
				{ID: 2, Title: "Dos"},
				{ID: 3, Title: "Tres"},
			},
			TotalPages: 1,
		},
	}}

	imp := New(store, archive)
	// By the time the page commits, every item must already be counted.
	var atCommit Snapshot
	store.onCreate = func() { atCommit = imp.Progress() }

	if _, err := imp.ImportMetadata(context.Background(), ImportParams{}); err != nil {
		t.Fatalf("ImportMetadata: %v", err)
	}
	if atCommit.Imported != 3 {
		t.Errorf("Imported at commit time = %d, want 3", atCommit.Imported)
	}
}

func TestImportMetadataFailedCommitRevertsCounters(t *testing.T) {
	store := newStubLetraStore()
	store.failNext = true
	archive := &stubArchive{pages: map[int]*ListPage{
		1: {
			Letras:     []RemoteLetra{{ID: 1, Title: "Uno"}, {ID: 2, Title: "Dos"}},
			TotalPages: 1,
		},
	}}

	imp := New(store, archive)
	snap, err := imp.ImportMetadata(context.Background(), ImportParams{})
	if err != nil {
		t.Fatalf("ImportMetadata: %v", err)
	}
	if snap.Imported != 0 {
		t.Errorf("Imported = %d, want 0 after a failed page commit", snap.Imported)
	}
	if snap.Errors != 1 {
		t.Errorf("Errors = %d, want 1", snap.Errors)
	}
}

func TestImportMetadataPageRetry(t *testing.T) {
	archive := &stubArchive{
		listErrs: map[int]int{1: 1},
		pages: map[int]*ListPage{
			1: {
				Letras:     []RemoteLetra{{ID: 9, Title: "Tango"}},
				Page:       1,
				TotalPages: 1,
			},
		},
	}

	imp := New(newStubLetraStore(), archive)
	snap, err := imp.ImportMetadata(context.Background(), ImportParams{})
	if err != nil {
		t.Fatalf("ImportMetadata: %v", err)
	}
	if snap.Errors != 1 {
		t.Errorf("Errors = %d, want 1 (the failed attempt)", snap.Errors)
	}
	if snap.Imported != 1 {
		t.Errorf("Imported = %d, want 1 (same page retried)", snap.Imported)
	}
	if archive.listCalls != 2 {
		t.Errorf("listCalls = %d, want 2", archive.listCalls)
	}
}

func TestImportMetadataAbortsAfterRepeatedFailures(t *testing.T) {
	archive := &stubArchive{listErrs: map[int]int{1: maxPageRetries + 1}}

	imp := New(newStubLetraStore(), archive)
	if _, err := imp.ImportMetadata(context.Background(), ImportParams{}); err == nil {
		t.Fatal("expected error after repeated page failures")
	}
	if imp.Progress().Active {
		t.Error("guard must be released after an aborted run")
	}
}

func TestImportMetadataMinQuality(t *testing.T) {
	archive := &stubArchive{pages: map[int]*ListPage{
		1: {
			Letras: []RemoteLetra{
				{ID: 1, Title: "Buena", Quality: 5},
				{ID: 2, Title: "Regular", Quality: 2},
			},
			TotalPages: 1,
		},
	}}

	imp := New(newStubLetraStore(), archive)
	snap, err := imp.ImportMetadata(context.Background(), ImportParams{MinQuality: 3})
	if err != nil {
		t.Fatalf("ImportMetadata: %v", err)
	}
	if snap.Imported != 1 || snap.Skipped != 1 {
		t.Errorf("snapshot = %+v, want the low-quality row skipped", snap)
	}
}

func TestGuardConflictPreservesCounters(t *testing.T) {
	imp := New(newStubLetraStore(), &stubArchive{})
	imp.progress.begin("import")
	imp.progress.add(7, 0, 2, 1)

	_, err := imp.ImportMetadata(context.Background(), ImportParams{})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
	_, err = imp.EnrichBatch(context.Background(), 10, 0)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("enrich err = %v, want ErrBusy", err)
	}

	snap := imp.Progress()
	if snap.Imported != 7 || snap.Skipped != 2 || snap.Errors != 1 {
		t.Errorf("rejected run clobbered counters: %+v", snap)
	}
	if !snap.Active {
		t.Error("original run must still hold the guard")
	}
}

func TestFetchContentCached(t *testing.T) {
	store := newStubLetraStore()
	store.rows[1] = &db.Letra{ID: 1, Content: "Y era por febrero, Cádiz en la calle", SourceURL: src("https://a.example/1")}
	archive := &stubArchive{}

	imp := New(store, archive)
	content, err := imp.FetchContent(context.Background(), 1)
	if err != nil {
		t.Fatalf("FetchContent: %v", err)
	}
	if content != store.rows[1].Content {
		t.Errorf("content = %q", content)
	}
	if archive.fetchCalls != 0 {
		t.Error("cached content must not hit the archive")
	}
}

func TestFetchContentLazyPersist(t *testing.T) {
	store := newStubLetraStore()
	store.rows[2] = &db.Letra{ID: 2, SourceURL: src("https://a.example/2")}
	archive := &stubArchive{detail: map[string]*RemoteLetra{
		"https://a.example/2": {Title: "Pasodoble", PieceType: "pasodoble", Texto: "Letra completa del pasodoble"},
	}}

	imp := New(store, archive)
	content, err := imp.FetchContent(context.Background(), 2)
	if err != nil {
		t.Fatalf("FetchContent: %v", err)
	}
	if content != "Letra completa del pasodoble" {
		t.Errorf("content = %q", content)
	}
	if len(store.setCalls) != 1 || store.setCalls[0] != 2 {
		t.Errorf("SetContent calls = %v", store.setCalls)
	}
}

func TestFetchContentFailureIsEmptyNotError(t *testing.T) {
	store := newStubLetraStore()
	store.rows[3] = &db.Letra{ID: 3, SourceURL: src("https://a.example/3")}
	archive := &stubArchive{detailErr: errors.New("timeout")}

	imp := New(store, archive)
	content, err := imp.FetchContent(context.Background(), 3)
	if err != nil {
		t.Fatalf("FetchContent: %v", err)
	}
	if content != "" {
		t.Errorf("content = %q, want empty", content)
	}
	if len(store.setCalls) != 0 {
		t.Error("failed fetch must not persist anything")
	}
}

func TestEnrichBatch(t *testing.T) {
	store := newStubLetraStore()
	store.pending = []*db.Letra{
		{ID: 10, SourceURL: src("https://a.example/10")},
		{ID: 11, SourceURL: src("https://a.example/11")},
		{ID: 12, SourceURL: src("https://a.example/12")},
	}
	archive := &stubArchive{detail: map[string]*RemoteLetra{
		"https://a.example/10": {Contenido: "texto diez"},
		"https://a.example/12": {Contenido: "texto doce"},
	}}

	imp := New(store, archive)
	snap, err := imp.EnrichBatch(context.Background(), 50, 0)
	if err != nil {
		t.Fatalf("EnrichBatch: %v", err)
	}
	if snap.Updated != 2 || snap.Errors != 1 {
		t.Errorf("snapshot = %+v, want updated 2 errors 1", snap)
	}
	if snap.Active {
		t.Error("guard must be released when the run ends")
	}
}
