package files

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func write(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestValidateFiles(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "notes.txt"), "hello")
	write(t, filepath.Join(dir, "empty.bin"), "")
	write(t, filepath.Join(dir, "album", "one.jpg"), "jpeg")

	infos, err := ValidateFiles([]string{filepath.Join(dir, "notes.txt"), filepath.Join(dir, "album")})
	if err != nil {
		t.Fatalf("ValidateFiles: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("infos = %+v", infos)
	}
	if infos[0].Name != "notes.txt" || infos[0].Size != 5 || !strings.HasPrefix(infos[0].Type, "text/plain") {
		t.Errorf("file info = %+v", infos[0])
	}
	if !infos[1].IsDir || infos[1].Name != "album.zip" || infos[1].Type != zipMediaType {
		t.Errorf("dir info = %+v", infos[1])
	}

	_, err = ValidateFiles([]string{filepath.Join(dir, "empty.bin"), filepath.Join(dir, "missing")})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "file is empty") || !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("error does not list every problem: %v", err)
	}

	if _, err := ValidateFiles(nil); err == nil {
		t.Error("expected error for no files")
	}
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.txt"), "alpha")
	write(t, filepath.Join(dir, "docs", "b.md"), "# bravo")

	files, err := LoadAll([]string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "docs")})
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %d", len(files))
	}
	if string(files[0].Data) != "alpha" {
		t.Errorf("a.txt data = %q", files[0].Data)
	}

	zr, err := zip.NewReader(bytes.NewReader(files[1].Data), int64(len(files[1].Data)))
	if err != nil {
		t.Fatalf("docs.zip is not a zip: %v", err)
	}
	found := false
	for _, f := range zr.File {
		if f.Name == "docs/b.md" {
			found = true
		}
	}
	if !found {
		t.Errorf("docs/b.md missing from archive")
	}

	if got := GetTotalSize(files); got != int64(len(files[0].Data)+len(files[1].Data)) {
		t.Errorf("GetTotalSize = %d", got)
	}
}
