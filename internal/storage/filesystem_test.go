package storage

import (
	"context"
	"os"
	"testing"
)

func TestFileStoreWrite(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	key, err := store.Write(context.Background(), "./generated/gen-1/img_a.png", []byte("png"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "generated/gen-1/img_a.png" {
		t.Fatalf("key = %q", key)
	}
	data, err := os.ReadFile(store.Path(key))
	if err != nil || string(data) != "png" {
		t.Fatalf("read back = %q, %v", data, err)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	for _, key := range []string{"", "../escape.png", "a/../../escape.png", ".."} {
		if _, err := store.Write(context.Background(), key, []byte("x")); err == nil {
			t.Fatalf("Write(%q) should fail", key)
		}
	}
}

func TestFileStoreHonorsContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Write(ctx, "a.png", nil); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestResultKey(t *testing.T) {
	tests := []struct {
		name     string
		resultID string
		mime     string
		index    int
		want     string
	}{
		{name: "adds extension", resultID: "dragon-1", mime: "image/png", want: "generated/gen-1/dragon-1.png"},
		{name: "keeps matching extension", resultID: "img_a.png", mime: "image/png", want: "generated/gen-1/img_a.png"},
		{name: "jpeg alias", resultID: "shot.jpeg", mime: "image/jpeg; charset=binary", want: "generated/gen-1/shot.jpeg"},
		{name: "unknown mime", resultID: "raw", mime: "application/octet-stream", want: "generated/gen-1/raw"},
		{name: "unsafe id", resultID: "../x", mime: "image/webp", index: 2, want: "generated/gen-1/image-03.webp"},
		{name: "empty id", resultID: "", mime: "image/png", want: "generated/gen-1/image-01.png"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResultKey("gen-1", tc.resultID, tc.mime, tc.index); got != tc.want {
				t.Fatalf("ResultKey = %q, want %q", got, tc.want)
			}
		})
	}
}
