package archive

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLocalArchiveMovesIntoDatedDir(t *testing.T) {
	srcDir := t.TempDir()
	root := t.TempDir()
	src := filepath.Join(srcDir, "take1.wav")
	writeFile(t, src, []byte("recitation"))

	a := NewLocal(root, zerolog.Nop())
	dest, err := a.Archive(context.Background(), src)
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	rel, err := filepath.Rel(root, dest)
	if err != nil {
		t.Fatalf("dest %q not under archive root %q", dest, root)
	}
	if want := regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`); !want.MatchString(filepath.ToSlash(filepath.Dir(rel))) {
		t.Errorf("dest dir = %q, want dated YYYY/MM/DD layout", filepath.Dir(rel))
	}
	if got := filepath.Base(dest); got != "take1.wav" {
		t.Errorf("dest base = %q, want take1.wav", got)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read archived file: %v", err)
	}
	if string(data) != "recitation" {
		t.Errorf("archived content = %q, want %q", data, "recitation")
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("source still present after archive: %v", err)
	}
}

func TestLocalArchiveCollisionGetsSuffix(t *testing.T) {
	root := t.TempDir()
	a := NewLocal(root, zerolog.Nop())

	first := filepath.Join(t.TempDir(), "take.wav")
	second := filepath.Join(t.TempDir(), "take.wav")
	writeFile(t, first, []byte("first"))
	writeFile(t, second, []byte("second"))

	dest1, err := a.Archive(context.Background(), first)
	if err != nil {
		t.Fatalf("first Archive() error = %v", err)
	}
	dest2, err := a.Archive(context.Background(), second)
	if err != nil {
		t.Fatalf("second Archive() error = %v", err)
	}

	if dest1 == dest2 {
		t.Fatalf("colliding archives reused path %q", dest1)
	}
	if got := filepath.Base(dest2); got != "take-1.wav" {
		t.Errorf("second dest base = %q, want take-1.wav", got)
	}
	for dest, want := range map[string]string{dest1: "first", dest2: "second"} {
		data, err := os.ReadFile(dest)
		if err != nil {
			t.Fatalf("read %s: %v", dest, err)
		}
		if string(data) != want {
			t.Errorf("content of %s = %q, want %q", dest, data, want)
		}
	}
}

func TestLocalArchiveMissingSource(t *testing.T) {
	a := NewLocal(t.TempDir(), zerolog.Nop())
	if _, err := a.Archive(context.Background(), filepath.Join(t.TempDir(), "gone.wav")); err == nil {
		t.Fatal("Archive() of missing file succeeded, want error")
	}
}

func TestCopyFileLeavesNoTempDebris(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.wav")
	writeFile(t, src, []byte("payload"))

	dest := filepath.Join(dir, "dest.wav")
	if err := copyFile(src, dest); err != nil {
		t.Fatalf("copyFile() error = %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("dest content = %q, want %q", data, "payload")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("dir has %d entries, want 2 (src and dest only)", len(entries))
	}
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	for _, mode := range []string{"", "none"} {
		a, err := New(ctx, Options{Mode: mode})
		if err != nil {
			t.Errorf("New(mode=%q) error = %v", mode, err)
		}
		if a != nil {
			t.Errorf("New(mode=%q) = %T, want nil", mode, a)
		}
	}

	a, err := New(ctx, Options{Mode: "local", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("New(local) error = %v", err)
	}
	if _, ok := a.(*LocalArchive); !ok {
		t.Errorf("New(local) = %T, want *LocalArchive", a)
	}

	if _, err := New(ctx, Options{Mode: "s3"}); err == nil {
		t.Error("New(s3) without bucket succeeded, want error")
	}
	if _, err := New(ctx, Options{Mode: "tape"}); err == nil {
		t.Error("New(tape) succeeded, want unknown mode error")
	}
}

func TestPrunerRemovesOldEntries(t *testing.T) {
	root := t.TempDir()
	old := filepath.Join(root, "2020", "01", "02", "old.wav")
	fresh := filepath.Join(root, "2031", "01", "01", "new.wav")
	writeFile(t, old, []byte("0123456789"))
	writeFile(t, fresh, []byte("keep"))

	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	p := NewPruner(root, 24*time.Hour, zerolog.Nop())
	pruned, freed := p.prune()
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	if freed != 10 {
		t.Errorf("freed = %d, want 10", freed)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Errorf("expired file still present: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "2020")); !os.IsNotExist(err) {
		t.Errorf("emptied date tree still present: %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh file removed by pruner: %v", err)
	}
}

func TestPrunerStartStop(t *testing.T) {
	p := NewPruner(t.TempDir(), time.Hour, zerolog.Nop())
	p.interval = 10 * time.Millisecond
	p.Start()
	time.Sleep(30 * time.Millisecond)
	p.Stop()
	p.Stop()
}

func TestHumanizeBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{1536, "1.5 KiB"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := humanizeBytes(tt.n); got != tt.want {
			t.Errorf("humanizeBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a.mp3", "audio/mpeg"},
		{"b.WAV", "audio/wav"},
		{"c.m4a", "audio/mp4"},
		{"d.ogg", "audio/ogg"},
		{"e.bin", "application/octet-stream"},
		{"noext", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := contentTypeFor(tt.path); got != tt.want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
