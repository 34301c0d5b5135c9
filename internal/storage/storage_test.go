package storage_test

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"swissdamed/internal/domain"
	"swissdamed/internal/etl"
	"swissdamed/internal/etl/destinations"
	"swissdamed/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// RunStore
// ─────────────────────────────────────────────────────────────

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "state", "state.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew_MigrateTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	for i := 0; i < 2; i++ {
		db, err := storage.New(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		db.Close()
	}
}

func TestRunStore_CreateAndList(t *testing.T) {
	store := storage.NewRunStore(openDB(t))
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, status := range []domain.BuildStatus{domain.BuildStatusSuccess, domain.BuildStatusError, domain.BuildStatusSuccess} {
		run := &domain.BuildRun{
			Source:     "http",
			Status:     status,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			Records:    10 * i,
			Rows:       20 * i,
			Columns:    5,
			Artifacts:  []string{"/out/a.csv", "/out/a.db"},
		}
		if err := store.CreateRun(run); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		if run.ID == "" {
			t.Fatal("expected generated id")
		}
	}

	runs, err := store.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if runs[0].Records != 20 || runs[1].Status != domain.BuildStatusError {
		t.Fatalf("unexpected order: %+v", runs)
	}
	if runs[0].Trigger != domain.BuildTriggerManual {
		t.Fatalf("trigger = %q, want manual", runs[0].Trigger)
	}
	if !reflect.DeepEqual(runs[0].Artifacts, []string{"/out/a.csv", "/out/a.db"}) {
		t.Fatalf("artifacts = %v", runs[0].Artifacts)
	}

	got, err := store.GetRun(runs[1].ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.ID != runs[1].ID || !got.StartedAt.Equal(runs[1].StartedAt) {
		t.Fatalf("GetRun = %+v", got)
	}
}

func TestRunStore_GetRun_NotFound(t *testing.T) {
	store := storage.NewRunStore(openDB(t))
	if _, err := store.GetRun("missing"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

// ─────────────────────────────────────────────────────────────
// Artifact
// ─────────────────────────────────────────────────────────────

func buildArtifact(t *testing.T) (string, *etl.Table) {
	t.Helper()
	tn := func(lang, text string) etl.Value {
		return etl.ObjectValue(etl.NewObject(
			etl.Field{Name: "language", Value: etl.Text(lang)},
			etl.Field{Name: "textValue", Value: etl.Text(text)},
		))
	}
	v := func(code string, names ...etl.Value) etl.Value {
		return etl.ObjectValue(etl.NewObject(
			etl.Field{Name: "udiDiCode", Value: etl.Text(code)},
			etl.Field{Name: "tradeNames", Value: etl.List(names...)},
		))
	}
	table := etl.BuildTable([]etl.Record{
		etl.NewRecord(
			etl.Field{Name: "basicUdi", Value: etl.Text("A")},
			etl.Field{Name: "udiDis", Value: etl.List(
				v("X1", tn("en", "Cardio Stent"), tn("de", "Herzstent")),
				v("X2", tn("en", "Bone_Screw 100%")),
			)},
		),
		etl.NewRecord(etl.Field{Name: "basicUdi", Value: etl.Text("B")}),
	})
	path := filepath.Join(t.TempDir(), "swissdamed.db")
	if _, err := (&destinations.SQLite{Path: path}).Encode(context.Background(), table); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return path, table
}

func TestArtifact_ReadTableMatchesBuild(t *testing.T) {
	path, table := buildArtifact(t)
	a, err := storage.OpenArtifact(path, "")
	if err != nil {
		t.Fatalf("OpenArtifact: %v", err)
	}
	defer a.Close()

	rs, err := a.ReadTable(context.Background())
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if !reflect.DeepEqual(rs.Columns, table.Header()) {
		t.Fatalf("columns = %v, want %v", rs.Columns, table.Header())
	}
	if !reflect.DeepEqual(rs.Rows, table.Rows) {
		t.Fatalf("rows = %q, want %q", rs.Rows, table.Rows)
	}
}

func TestArtifact_Describe(t *testing.T) {
	path, _ := buildArtifact(t)
	a, err := storage.OpenArtifact(path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	info, err := a.Describe(context.Background())
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if info.Rows != 3 {
		t.Fatalf("rows = %d, want 3", info.Rows)
	}
	if !reflect.DeepEqual(info.Languages, []string{"en", "de"}) {
		t.Fatalf("languages = %v", info.Languages)
	}
	for _, c := range info.Columns {
		if c.Type != "TEXT" {
			t.Errorf("column %s type = %s, want TEXT", c.Name, c.Type)
		}
		wantIndexed := c.Name != "basicUdi"
		if c.Indexed != wantIndexed {
			t.Errorf("column %s indexed = %v, want %v", c.Name, c.Indexed, wantIndexed)
		}
	}
}

func TestArtifact_Lookup(t *testing.T) {
	path, _ := buildArtifact(t)
	a, err := storage.OpenArtifact(path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	rs, err := a.Lookup(context.Background(), " X2 ")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(rs.Rows) != 1 || rs.Rows[0][0] != "A" || rs.Rows[0][1] != "X2" {
		t.Fatalf("rows = %v", rs.Rows)
	}
}

func TestArtifact_SearchLocalized(t *testing.T) {
	path, _ := buildArtifact(t)
	a, err := storage.OpenArtifact(path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	ctx := context.Background()

	rs, err := a.SearchLocalized(ctx, "stent", 10)
	if err != nil {
		t.Fatalf("SearchLocalized: %v", err)
	}
	if len(rs.Rows) != 1 || rs.Rows[0][1] != "X1" {
		t.Fatalf("stent rows = %v", rs.Rows)
	}

	// Wildcards in the term match literally.
	rs, err = a.SearchLocalized(ctx, "_screw 100%", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rs.Rows) != 1 || rs.Rows[0][1] != "X2" {
		t.Fatalf("literal rows = %v", rs.Rows)
	}
	rs, err = a.SearchLocalized(ctx, "%", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rs.Rows) != 1 {
		t.Fatalf("percent rows = %d, want 1", len(rs.Rows))
	}

	if _, err := a.SearchLocalized(ctx, "  ", 10); err == nil {
		t.Fatal("expected error for blank term")
	}
}

func TestOpenArtifact_Missing(t *testing.T) {
	if _, err := storage.OpenArtifact(filepath.Join(t.TempDir(), "nope.db"), ""); err == nil {
		t.Fatal("expected error for missing artifact")
	}
}
