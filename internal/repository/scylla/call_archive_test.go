package scylla

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ProductBay/vynce/internal/domain"
)

func TestBucketDateUsesUTCDay(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	got := bucketDate(time.Date(2024, 3, 1, 22, 30, 0, 0, loc))
	want := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestDecodeCall(t *testing.T) {
	dur := int64(42)
	in := domain.Call{
		LocalID:  "local-1",
		RemoteID: "uuid-1",
		Number:   "+15551234567",
		Status:   domain.CallStatusCompleted,
		Duration: &dur,
		Metadata: map[string]any{"name": "Alex"},
	}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	out, err := decodeCall(string(raw))
	if err != nil {
		t.Fatalf("decodeCall: %v", err)
	}
	if out.LocalID != "local-1" || out.Status != domain.CallStatusCompleted || *out.Duration != 42 {
		t.Fatalf("unexpected call %+v", out)
	}
	if out.MetadataString("name") != "Alex" {
		t.Fatalf("metadata lost: %+v", out.Metadata)
	}

	if _, err := decodeCall(`{"number":"+1"}`); err == nil || !strings.Contains(err.Error(), "missing localId") {
		t.Fatalf("expected missing localId error, got %v", err)
	}
	if _, err := decodeCall(`not json`); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSchemaTablesAreIdempotent(t *testing.T) {
	for _, stmt := range Schema {
		if !strings.Contains(stmt, "IF NOT EXISTS") {
			t.Fatalf("schema statement is not idempotent: %s", stmt)
		}
	}
}
