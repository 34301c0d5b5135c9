package sources_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"swissdamed/internal/etl"
	"swissdamed/internal/etl/destinations"
	"swissdamed/internal/etl/sources"
)

// catalogServer serves total items as {"values": [{"id": N}, ...]} pages.
func catalogServer(t *testing.T, total int, hook func(w http.ResponseWriter, r *http.Request, page int) bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		size, _ := strconv.Atoi(r.URL.Query().Get("size"))
		if hook != nil && hook(w, r, page) {
			return
		}
		var items []string
		for i := page * size; i < (page+1)*size && i < total; i++ {
			items = append(items, fmt.Sprintf(`{"id": %d}`, i))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"values": [%s]}`, strings.Join(items, ","))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func ids(records []etl.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Get("id").Text()
	}
	return out
}

// ─────────────────────────────────────────────────────────────
// HTTPSource
// ─────────────────────────────────────────────────────────────

func TestHTTPSource_StopsOnShortPage(t *testing.T) {
	var requests atomic.Int32
	srv := catalogServer(t, 7, func(http.ResponseWriter, *http.Request, int) bool {
		requests.Add(1)
		return false
	})

	src, err := sources.NewHTTPSource(sources.HTTPConfig{URL: srv.URL, PageSize: 3})
	if err != nil {
		t.Fatal(err)
	}
	records, err := src.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := strings.Join(ids(records), ","); got != "0,1,2,3,4,5,6" {
		t.Fatalf("ids = %s", got)
	}
	if requests.Load() != 3 {
		t.Fatalf("requests = %d, want 3", requests.Load())
	}
}

func TestHTTPSource_StopsOnEmptyPage(t *testing.T) {
	srv := catalogServer(t, 6, nil)
	src, _ := sources.NewHTTPSource(sources.HTTPConfig{URL: srv.URL, PageSize: 3})
	records, err := src.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 6 {
		t.Fatalf("records = %d, want 6", len(records))
	}
}

func TestHTTPSource_ConcurrentWindowKeepsOrder(t *testing.T) {
	srv := catalogServer(t, 20, func(_ http.ResponseWriter, _ *http.Request, page int) bool {
		// Earlier pages answer last.
		time.Sleep(time.Duration(5-page%5) * 5 * time.Millisecond)
		return false
	})
	src, _ := sources.NewHTTPSource(sources.HTTPConfig{URL: srv.URL, PageSize: 2, Concurrency: 4})
	records, err := src.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 20 {
		t.Fatalf("records = %d, want 20", len(records))
	}
	for i, id := range ids(records) {
		if id != strconv.Itoa(i) {
			t.Fatalf("record %d has id %s", i, id)
		}
	}
}

func TestHTTPSource_ErrorAfterTerminalPageIgnored(t *testing.T) {
	srv := catalogServer(t, 3, func(w http.ResponseWriter, _ *http.Request, page int) bool {
		if page >= 2 {
			http.Error(w, "gone", http.StatusNotFound)
			return true
		}
		return false
	})
	src, _ := sources.NewHTTPSource(sources.HTTPConfig{URL: srv.URL, PageSize: 2, Concurrency: 4})
	records, err := src.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
}

func TestHTTPSource_RetriesTransientStatus(t *testing.T) {
	var failures atomic.Int32
	srv := catalogServer(t, 1, func(w http.ResponseWriter, _ *http.Request, _ int) bool {
		if failures.Add(1) <= 2 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return true
		}
		return false
	})
	src, _ := sources.NewHTTPSource(sources.HTTPConfig{
		URL:            srv.URL,
		PageSize:       10,
		MaxRetries:     3,
		BackoffInitial: time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
	})
	records, err := src.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
}

func TestHTTPSource_PermanentStatus(t *testing.T) {
	var calls atomic.Int32
	srv := catalogServer(t, 1, func(w http.ResponseWriter, _ *http.Request, _ int) bool {
		calls.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
		return true
	})
	src, _ := sources.NewHTTPSource(sources.HTTPConfig{URL: srv.URL, MaxRetries: 3, BackoffInitial: time.Millisecond})
	_, err := src.Read(context.Background())

	var acqErr *sources.AcquireError
	if !errors.As(err, &acqErr) || acqErr.Page != 0 {
		t.Fatalf("err = %v, want AcquireError for page 0", err)
	}
	var statusErr *sources.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusForbidden {
		t.Fatalf("err = %v, want 403 StatusError", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want no retries", calls.Load())
	}
}

func TestHTTPSource_MissingValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"items": []}`)
	}))
	defer srv.Close()

	src, _ := sources.NewHTTPSource(sources.HTTPConfig{URL: srv.URL})
	if _, err := src.Read(context.Background()); err == nil || !strings.Contains(err.Error(), "values") {
		t.Fatalf("err = %v, want missing values error", err)
	}
}

func TestHTTPSource_HeadersAndCookies(t *testing.T) {
	var (
		mu      sync.Mutex
		cookies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("content-type = %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != sources.DefaultUserAgent {
			t.Errorf("user-agent = %q", got)
		}
		c, _ := r.Cookie("session")
		mu.Lock()
		if c != nil {
			cookies = append(cookies, c.Value)
		} else {
			cookies = append(cookies, "")
		}
		mu.Unlock()

		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		if r.URL.Query().Get("page") == "0" {
			fmt.Fprint(w, `{"values": [{"id": 1}]}`)
			return
		}
		fmt.Fprint(w, `{"values": []}`)
	}))
	defer srv.Close()

	src, _ := sources.NewHTTPSource(sources.HTTPConfig{URL: srv.URL, PageSize: 1})
	if _, err := src.Read(context.Background()); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(cookies) != 2 || cookies[0] != "" || cookies[1] != "abc" {
		t.Fatalf("cookies seen = %q, want [\"\" \"abc\"]", cookies)
	}
}

func TestHTTPSource_MaxPages(t *testing.T) {
	srv := catalogServer(t, 100, nil)
	src, _ := sources.NewHTTPSource(sources.HTTPConfig{URL: srv.URL, PageSize: 5, MaxPages: 2, Concurrency: 3})
	records, err := src.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 10 {
		t.Fatalf("records = %d, want 10", len(records))
	}
}

// ─────────────────────────────────────────────────────────────
// File sources
// ─────────────────────────────────────────────────────────────

func TestJSONFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	doc := `{"values": [{"basicUdi": "A", "udiDis": [{"udiDiCode": "X1"}]}, {"basicUdi": "B"}]}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	records, err := (&sources.JSONFileSource{Path: path}).Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	table := etl.BuildTable(records)
	if len(table.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(table.Rows))
	}
}

func TestJSONFileSource_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"nothing": true}`), 0644); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{bad, filepath.Join(dir, "missing.json")} {
		_, err := (&sources.JSONFileSource{Path: path}).Read(context.Background())
		var acqErr *sources.AcquireError
		if !errors.As(err, &acqErr) {
			t.Errorf("%s: err = %v, want AcquireError", path, err)
		}
	}
}

func TestCSVFileSource_RebuildsSameTable(t *testing.T) {
	original := etl.BuildTable([]etl.Record{
		etl.NewRecord(
			etl.Field{Name: "basicUdi", Value: etl.Text("A")},
			etl.Field{Name: "udiDis", Value: etl.List(etl.ObjectValue(etl.NewObject(
				etl.Field{Name: "udiDiCode", Value: etl.Text("X1")},
				etl.Field{Name: "tradeNames", Value: etl.List(etl.ObjectValue(etl.NewObject(
					etl.Field{Name: "language", Value: etl.Text("en")},
					etl.Field{Name: "textValue", Value: etl.Text("Alpha")},
				)))},
			)))},
		),
		etl.NewRecord(etl.Field{Name: "basicUdi", Value: etl.Text("B")}),
	})
	path := filepath.Join(t.TempDir(), "swissdamed.csv")
	if _, err := (&destinations.CSV{Path: path}).Encode(context.Background(), original); err != nil {
		t.Fatal(err)
	}

	records, err := (&sources.CSVFileSource{Path: path}).Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	rebuilt := etl.BuildTable(records)
	if strings.Join(rebuilt.Header(), ",") != strings.Join(original.Header(), ",") {
		t.Fatalf("header = %v, want %v", rebuilt.Header(), original.Header())
	}
	if len(rebuilt.Rows) != len(original.Rows) {
		t.Fatalf("rows = %d, want %d", len(rebuilt.Rows), len(original.Rows))
	}
	if got := rebuilt.Columns.LookupColumns(); strings.Join(got, ",") != "udiDiCode,tradeName_en" {
		t.Fatalf("lookup columns = %v", got)
	}
}
