package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
	"time"
)

func TestArchive(t *testing.T) {
	data, err := Archive([]Entry{
		{Filename: "generated/job/a.png", Data: []byte("aaa")},
		{Filename: "other/a.png", Data: []byte("bbb")},
		{Filename: "c.webp", Data: []byte("ccc")},
	}, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	want := map[string]string{"a.png": "aaa", "a-2.png": "bbb", "c.webp": "ccc"}
	if len(zr.File) != len(want) {
		t.Fatalf("expected %d files, got %d", len(want), len(zr.File))
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		body, _ := io.ReadAll(rc)
		rc.Close()
		if want[f.Name] != string(body) {
			t.Fatalf("%s: got %q", f.Name, body)
		}
	}
}

func TestArchiveEmpty(t *testing.T) {
	data, err := Archive(nil, time.Now())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := zip.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("empty archive must still be valid: %v", err)
	}
}
