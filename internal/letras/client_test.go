package letras

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

const listingBody = `{
	"letras": [
		{"id": 101, "titulo": "Pasodoble a La Viña", "tipo_pieza": "pasodoble", "anio": 2023, "agrupacion": "Los Sumisos", "calidad": 4},
		{"id": 102, "titulo": "Cuplé del Falla", "tipo_pieza": "cuple", "anio": 2023, "agrupacion": "Los Sumisos", "calidad": 3}
	],
	"page": 1,
	"total": 2,
	"total_pages": 1
}`

func newArchiveServer(t *testing.T) (*httptest.Server, *http.Request) {
	t.Helper()
	var captured http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = *r
		switch r.URL.Path {
		case "/api/letras":
			fmt.Fprint(w, listingBody)
		case "/api/letra/101":
			fmt.Fprint(w, `{"id": 101, "titulo": "Pasodoble a La Viña", "contenido": "Con permiso de ustedes empieza el pasodoble"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestClientListParsesArchiveListing(t *testing.T) {
	srv, captured := newArchiveServer(t)
	c := NewClient(srv.URL)

	page, err := c.List(context.Background(), 1, ListFilters{Year: 2023, Category: "comparsa"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	if captured.URL.Path != "/api/letras" {
		t.Errorf("request path = %q, want /api/letras", captured.URL.Path)
	}
	q := captured.URL.Query()
	if q.Get("per_page") != "50" || q.Get("anio") != "2023" || q.Get("modalidad") != "comparsa" {
		t.Errorf("query = %v", q)
	}

	if len(page.Letras) != 2 || page.TotalPages != 1 {
		t.Fatalf("page = %+v", page)
	}
	first := page.Letras[0]
	if first.ID != 101 || first.PieceType != "pasodoble" || first.GroupName != "Los Sumisos" {
		t.Errorf("first item = %+v", first)
	}
	if first.Year == nil || *first.Year != 2023 {
		t.Errorf("year = %v", first.Year)
	}
}

func TestClientDetailURL(t *testing.T) {
	c := NewClient("https://archive.example/")
	if got := c.DetailURL(101); got != "https://archive.example/api/letra/101" {
		t.Errorf("DetailURL = %q", got)
	}
}

func TestImportMetadataAgainstArchivePayload(t *testing.T) {
	srv, _ := newArchiveServer(t)
	store := newStubLetraStore()

	imp := New(store, NewClient(srv.URL))
	snap, err := imp.ImportMetadata(context.Background(), ImportParams{})
	if err != nil {
		t.Fatalf("ImportMetadata: %v", err)
	}

	// Every listing item gets a computed detail URL; none is dropped for
	// lacking one.
	if snap.Imported != 2 || snap.Skipped != 0 {
		t.Fatalf("snapshot = %+v, want imported 2 skipped 0", snap)
	}
	if len(store.batches) != 1 || len(store.batches[0]) != 2 {
		t.Fatalf("batches = %+v", store.batches)
	}
	if got := store.batches[0][0].SourceURL; got != srv.URL+"/api/letra/101" {
		t.Errorf("fuente = %q, want computed detail URL", got)
	}
	if got := store.batches[0][1].PieceType; got != "cuple" {
		t.Errorf("piece type = %q", got)
	}
}

func TestClientFetchDetailContent(t *testing.T) {
	srv, _ := newArchiveServer(t)
	c := NewClient(srv.URL)

	detail, err := c.FetchDetail(context.Background(), c.DetailURL(101))
	if err != nil {
		t.Fatalf("FetchDetail: %v", err)
	}
	if detail.Content() != "Con permiso de ustedes empieza el pasodoble" {
		t.Errorf("content = %q", detail.Content())
	}
}
