package etl_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"swissdamed/internal/etl"
)

// ─────────────────────────────────────────────────────────────
// Engine
// ─────────────────────────────────────────────────────────────

type recordingEncoder struct {
	name  string
	err   error
	table *etl.Table
}

func (e *recordingEncoder) Name() string { return e.name }

func (e *recordingEncoder) Encode(_ context.Context, t *etl.Table) (string, error) {
	e.table = t
	if e.err != nil {
		return "", e.err
	}
	return "/out/" + e.name, nil
}

func TestEngine_Run_Success(t *testing.T) {
	csv := &recordingEncoder{name: "csv"}
	db := &recordingEncoder{name: "sqlite"}
	job := &etl.Job{
		ID:       "job-1",
		Source:   etl.StaticSource(sampleRecords()),
		Encoders: []etl.Encoder{csv, db},
	}

	var engine etl.Engine
	res, err := engine.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != "success" || res.Records != 2 || res.Rows != 3 || res.Columns != 5 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Artifacts) != 2 || res.Artifacts[0].Path != "/out/csv" || res.Artifacts[1].Path != "/out/sqlite" {
		t.Fatalf("artifacts = %+v", res.Artifacts)
	}
	if csv.table != db.table {
		t.Fatal("encoders must share the same table")
	}
}

func TestEngine_Run_SourceErrorAbortsBeforeEncoding(t *testing.T) {
	boom := errors.New("network down")
	enc := &recordingEncoder{name: "csv"}
	job := &etl.Job{
		ID: "job-2",
		Source: etl.SourceFunc{Label: "failing", Fn: func(context.Context) ([]etl.Record, error) {
			return nil, boom
		}},
		Encoders: []etl.Encoder{enc},
	}

	var engine etl.Engine
	res, err := engine.Run(context.Background(), job)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if res.Status != "error" || res.Table != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if enc.table != nil {
		t.Fatal("encoder must not run after a source error")
	}
}

func TestEngine_Run_EncoderFailureKeepsOthers(t *testing.T) {
	good := &recordingEncoder{name: "csv"}
	bad := &recordingEncoder{name: "sqlite", err: errors.New("disk full")}
	job := &etl.Job{
		Source:   etl.StaticSource(sampleRecords()),
		Encoders: []etl.Encoder{good, bad},
	}

	var engine etl.Engine
	res, err := engine.Run(context.Background(), job)
	if err == nil || !strings.Contains(err.Error(), "encode sqlite") {
		t.Fatalf("err = %v, want sqlite encode error", err)
	}
	if len(res.Artifacts) != 1 || res.Artifacts[0].Encoder != "csv" {
		t.Fatalf("artifacts = %+v", res.Artifacts)
	}
}

func TestEngine_Run_Empty(t *testing.T) {
	enc := &recordingEncoder{name: "csv"}
	job := &etl.Job{Source: etl.StaticSource(nil), Encoders: []etl.Encoder{enc}}

	var engine etl.Engine
	res, err := engine.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != "empty" || enc.table != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestEngine_Run_NoSource(t *testing.T) {
	var engine etl.Engine
	if _, err := engine.Run(context.Background(), &etl.Job{}); err == nil {
		t.Fatal("expected error without a source")
	}
}

func TestEngine_Run_RecordsWithoutFieldsAreEmpty(t *testing.T) {
	enc := &recordingEncoder{name: "sqlite"}
	job := &etl.Job{
		Source: etl.StaticSource([]etl.Record{
			etl.NewRecord(),
			etl.NewRecord(etl.Field{Name: "udiDis", Value: etl.List()}),
		}),
		Encoders: []etl.Encoder{enc},
	}

	var engine etl.Engine
	res, err := engine.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != "empty" || res.Records != 2 || len(res.Artifacts) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if enc.table != nil {
		t.Fatal("encoder must not run for a table without columns")
	}
}
