package infra

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"

	"studio/internal/sqlinline"
)

func TestSplitMarker(t *testing.T) {
	marker, body, err := SplitMarker("\n--sql 0b7e4f62-5d18-4c3a-9e21-7a6c5b8d4f10\nselect 1;\n")
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if marker != "0b7e4f62-5d18-4c3a-9e21-7a6c5b8d4f10" || body != "select 1;" {
		t.Fatalf("unexpected marker %q body %q", marker, body)
	}
}

func TestSplitMarkerRejects(t *testing.T) {
	for _, q := range []string{
		"select 1",
		"--sql not-a-uuid\nselect 1",
		"-- 0b7e4f62-5d18-4c3a-9e21-7a6c5b8d4f10\nselect 1",
	} {
		if _, _, err := SplitMarker(q); !errors.Is(err, ErrSQLMarker) {
			t.Fatalf("%q: expected ErrSQLMarker, got %v", q, err)
		}
	}
	if _, _, err := SplitMarker("--sql 0b7e4f62-5d18-4c3a-9e21-7a6c5b8d4f10\n"); err == nil {
		t.Fatalf("expected error for marker without a query")
	}
}

func TestGenerationQueriesCarryMarkers(t *testing.T) {
	for name, q := range map[string]string{
		"create":  sqlinline.QCreateGenerationsTable,
		"insert":  sqlinline.QInsertGeneration,
		"update":  sqlinline.QUpdateGenerationOutcome,
		"by_id":   sqlinline.QSelectGenerationByID,
		"recents": sqlinline.QSelectRecentGenerations,
	} {
		if _, _, err := SplitMarker(q); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)) {
		t.Fatalf("wrapped ErrNoRows should match")
	}
	if IsNoRows(errors.New("boom")) {
		t.Fatalf("unrelated error should not match")
	}
}
