package store

import (
	"bytes"
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/roach88/wro/internal/cache"
	"github.com/roach88/wro/internal/model"
	"github.com/roach88/wro/internal/reqctx"
)

func TestSaveLoad_RoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(string(c), func(t *testing.T) {
			s := createTestStore(t, WithCompression(c))
			ctx := context.Background()
			want := createTestEntry(repeated("body { color: red }\n", 200))

			if err := s.Save(ctx, testKey, want); err != nil {
				t.Fatalf("Save() failed: %v", err)
			}
			got, err := s.Load(ctx, testKey)
			if err != nil {
				t.Fatalf("Load() failed: %v", err)
			}
			if got == nil {
				t.Fatal("Load() returned nil entry")
			}
			if !bytes.Equal(got.Artifact, want.Artifact) {
				t.Error("artifact mismatch after round trip")
			}
			if got.InputHash != want.InputHash {
				t.Errorf("InputHash = %q, want %q", got.InputHash, want.InputHash)
			}
			if !got.ComputedAt.Equal(want.ComputedAt) {
				t.Errorf("ComputedAt = %v, want %v", got.ComputedAt, want.ComputedAt)
			}
			if !reflect.DeepEqual(got.Constituents, want.Constituents) {
				t.Errorf("Constituents = %v, want %v", got.Constituents, want.Constituents)
			}
			if !reflect.DeepEqual(got.Warnings, want.Warnings) {
				t.Errorf("Warnings = %v, want %v", got.Warnings, want.Warnings)
			}
		})
	}
}

func TestSave_CompressesText(t *testing.T) {
	s := createTestStore(t, WithCompression(CompressionZstd))
	ctx := context.Background()
	artifact := repeated("a { margin: 0 }\n", 500)

	if err := s.Save(ctx, testKey, createTestEntry(artifact)); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	entries, err := s.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Compression != "zstd" {
		t.Errorf("compression = %q, want zstd", entries[0].Compression)
	}
	if entries[0].StoredSize >= entries[0].Size {
		t.Errorf("stored size %d not smaller than %d", entries[0].StoredSize, entries[0].Size)
	}
	if entries[0].Constituents != 2 {
		t.Errorf("constituents = %d, want 2", entries[0].Constituents)
	}
}

func TestSave_IncompressibleStoredRaw(t *testing.T) {
	s := createTestStore(t, WithCompression(CompressionLZ4))
	ctx := context.Background()

	if err := s.Save(ctx, testKey, createTestEntry("x")); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	entries, err := s.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries() failed: %v", err)
	}
	if entries[0].Compression != "none" {
		t.Errorf("compression = %q, want none", entries[0].Compression)
	}

	got, err := s.Load(ctx, testKey)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if string(got.Artifact) != "x" {
		t.Errorf("artifact = %q, want x", got.Artifact)
	}
}

func TestSave_ReplacesExisting(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, testKey, createTestEntry("first")); err != nil {
		t.Fatalf("first Save() failed: %v", err)
	}
	if err := s.Save(ctx, testKey, createTestEntry("second")); err != nil {
		t.Fatalf("second Save() failed: %v", err)
	}

	got, err := s.Load(ctx, testKey)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if string(got.Artifact) != "second" {
		t.Errorf("artifact = %q, want second", got.Artifact)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if st.Entries != 1 {
		t.Errorf("entries = %d, want 1", st.Entries)
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	s := createTestStore(t)

	got, err := s.Load(context.Background(), cache.NewKey("nope", model.TypeJS, false, ""))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil entry, got %+v", got)
	}
}

func TestLoad_EmptyConstituentsAndWarnings(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	e := &cache.Entry{Artifact: []byte{}, InputHash: model.InputHash(nil), ComputedAt: time.Unix(0, 1).UTC()}

	if err := s.Save(ctx, testKey, e); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	got, err := s.Load(ctx, testKey)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(got.Artifact) != 0 || len(got.Constituents) != 0 || got.Warnings != nil {
		t.Errorf("unexpected entry contents: %+v", got)
	}
}

func TestDeleteAndPurge(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	other := cache.NewKey("other", model.TypeJS, true, "")

	for _, k := range []cache.Key{testKey, other} {
		if err := s.Save(ctx, k, createTestEntry("x")); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
	}

	if err := s.Delete(ctx, testKey); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if got, _ := s.Load(ctx, testKey); got != nil {
		t.Error("entry still present after Delete()")
	}
	if got, _ := s.Load(ctx, other); got == nil {
		t.Error("Delete() removed an unrelated entry")
	}
	if err := s.Delete(ctx, testKey); err != nil {
		t.Errorf("deleting a missing key should not error: %v", err)
	}

	if err := s.Purge(ctx); err != nil {
		t.Fatalf("Purge() failed: %v", err)
	}
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if st.Entries != 0 {
		t.Errorf("entries after Purge() = %d, want 0", st.Entries)
	}
}

// Reports

func TestWriteReport_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	r := Report{
		RequestID:    "req-1",
		Key:          testKey.String(),
		Group:        "main",
		InputHash:    "abc",
		ArtifactSize: 42,
		Duration:     3 * time.Millisecond,
		StartedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Warnings:     []reqctx.Warning{{Kind: reqctx.WarnMissing, Subject: "gone.css", Message: "not found"}},
	}

	for i := 0; i < 2; i++ {
		if err := s.WriteReport(ctx, r); err != nil {
			t.Fatalf("WriteReport() failed: %v", err)
		}
	}

	reports, err := s.Reports(ctx, "", 0)
	if err != nil {
		t.Fatalf("Reports() failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}

	got := reports[0]
	if got.Seq == 0 {
		t.Error("Seq not assigned")
	}
	got.Seq = 0
	if !reflect.DeepEqual(got, r) {
		t.Errorf("report mismatch:\n got  %+v\n want %+v", got, r)
	}
}

func TestReports_FilterAndLimit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i, g := range []string{"a", "b", "a", "a"} {
		err := s.WriteReport(ctx, Report{
			RequestID: "req-" + string(rune('0'+i)),
			Key:       g,
			Group:     g,
			CacheHit:  i > 1,
			StartedAt: time.Unix(int64(i), 0).UTC(),
		})
		if err != nil {
			t.Fatalf("WriteReport() failed: %v", err)
		}
	}

	all, err := s.Reports(ctx, "a", 0)
	if err != nil {
		t.Fatalf("Reports() failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 reports for group a, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Seq <= all[i-1].Seq {
			t.Error("reports not in write order")
		}
	}

	limited, err := s.Reports(ctx, "a", 2)
	if err != nil {
		t.Fatalf("Reports() failed: %v", err)
	}
	if len(limited) != 2 || limited[0].RequestID != "req-0" {
		t.Errorf("unexpected limited reports: %+v", limited)
	}
	if !limited[1].CacheHit {
		t.Error("CacheHit not preserved")
	}
}
