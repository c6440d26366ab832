package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchive(t *testing.T) {
	entries := []Entry{
		{Name: "t1_mono.pdf", Data: []byte("mono content")},
		{Name: "t1_dual.pdf", Data: []byte("dual content")},
	}
	raw, err := Archive(entries)
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("reading archive back: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("archive holds %d files, want 2", len(zr.File))
	}
	for i, entry := range entries {
		f := zr.File[i]
		if f.Name != entry.Name {
			t.Fatalf("file %d name = %q, want %q", i, f.Name, entry.Name)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		if !bytes.Equal(data, entry.Data) {
			t.Fatalf("%s content = %q, want %q", f.Name, data, entry.Data)
		}
	}
}

func TestArchiveEmpty(t *testing.T) {
	raw, err := Archive(nil)
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("reading archive back: %v", err)
	}
	if len(zr.File) != 0 {
		t.Fatalf("archive holds %d files, want 0", len(zr.File))
	}
}
