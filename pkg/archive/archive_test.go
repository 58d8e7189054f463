package archive

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/matzehuels/sb3fix/pkg/descriptor"
	"github.com/matzehuels/sb3fix/pkg/errors"
)

type testEntry struct {
	name   string
	data   []byte
	method uint16
}

const testDescriptor = `{"targets":[{"comments":{"c1":{"text":"hi"}},"blocks":{"b1":{"opcode":"x","comment":"c1"},"b2":{"opcode":"y"}}}],"meta":{"semver":"3.0.0"}}`

// pngBytes is not a real image; it only needs to be binary and incompressible-ish.
var pngBytes = func() []byte {
	b := []byte("\x89PNG\r\n\x1a\n")
	for i := 0; i < 4096; i++ {
		b = append(b, byte(i*31+7))
	}
	return b
}()

var svgBytes = []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"><rect width="10" height="10"/></svg>`)

func defaultEntries() []testEntry {
	return []testEntry{
		{name: "project.json", data: []byte(testDescriptor), method: zip.Deflate},
		{name: "asset1.png", data: pngBytes, method: zip.Store},
		{name: "asset2.svg", data: svgBytes, method: zip.Deflate},
	}
}

func writeZip(t *testing.T, path string, entries []testEntry, comment string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: e.method})
		if err != nil {
			t.Fatalf("create %s: %v", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			t.Fatalf("write %s: %v", e.name, err)
		}
	}
	if comment != "" {
		if err := zw.SetComment(comment); err != nil {
			t.Fatalf("set comment: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
}

func readZip(t *testing.T, path string) (names []string, contents map[string][]byte) {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open result: %v", err)
	}
	defer r.Close()

	contents = make(map[string][]byte)
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			t.Fatalf("read entry %s: %v", f.Name, err)
		}
		rc.Close()
		names = append(names, f.Name)
		contents[f.Name] = buf.Bytes()
	}
	return names, contents
}

func mustHash(t *testing.T, path string) string {
	t.Helper()
	h, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile(%s): %v", path, err)
	}
	return h
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		t.Errorf("leftover temp file: %s", e.Name())
	}
}

func jsonEqual(t *testing.T, a, b []byte) bool {
	t.Helper()
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		t.Fatalf("decode %s: %v", a, err)
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return reflect.DeepEqual(va, vb)
}

func TestRewriteTransformsDescriptor(t *testing.T) {
	dir := t.TempDir()
	tempDir := t.TempDir()
	path := filepath.Join(dir, "game.sb3")
	writeZip(t, path, defaultEntries(), "")

	report, err := Rewrite(path, Options{Temp: SystemTemp{Dir: tempDir}})
	if err != nil {
		t.Fatalf("Rewrite() error: %v", err)
	}
	if !report.DescriptorFound {
		t.Error("DescriptorFound = false, want true")
	}
	if report.Entries != 3 {
		t.Errorf("Entries = %d, want 3", report.Entries)
	}

	names, contents := readZip(t, path)
	wantNames := []string{"project.json", "asset1.png", "asset2.svg"}
	if !reflect.DeepEqual(names, wantNames) {
		t.Errorf("entry order = %v, want %v", names, wantNames)
	}
	if !bytes.Equal(contents["asset1.png"], pngBytes) {
		t.Error("asset1.png changed")
	}
	if !bytes.Equal(contents["asset2.svg"], svgBytes) {
		t.Error("asset2.svg changed")
	}

	want, err := descriptor.Transform([]byte(testDescriptor))
	if err != nil {
		t.Fatalf("Transform() error: %v", err)
	}
	if !jsonEqual(t, contents["project.json"], want) {
		t.Errorf("project.json = %s, want %s", contents["project.json"], want)
	}

	assertEmptyDir(t, tempDir)
}

func TestRewriteKeepsRawEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "game.sb3")
	writeZip(t, path, defaultEntries(), "")

	before := rawEntries(t, path)
	if _, err := Rewrite(path, Options{Temp: SystemTemp{Dir: t.TempDir()}}); err != nil {
		t.Fatalf("Rewrite() error: %v", err)
	}
	after := rawEntries(t, path)

	for _, name := range []string{"asset1.png", "asset2.svg"} {
		if before[name].crc != after[name].crc {
			t.Errorf("%s CRC changed: %x -> %x", name, before[name].crc, after[name].crc)
		}
		if !bytes.Equal(before[name].raw, after[name].raw) {
			t.Errorf("%s compressed bytes changed", name)
		}
	}
}

type rawEntry struct {
	crc uint32
	raw []byte
}

func rawEntries(t *testing.T, path string) map[string]rawEntry {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	out := make(map[string]rawEntry)
	for _, f := range r.File {
		rd, err := f.OpenRaw()
		if err != nil {
			t.Fatalf("open raw %s: %v", f.Name, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rd); err != nil {
			t.Fatalf("read raw %s: %v", f.Name, err)
		}
		out[f.Name] = rawEntry{crc: f.CRC32, raw: buf.Bytes()}
	}
	return out
}

func TestRewriteWithoutDescriptor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assets.sb3")
	entries := defaultEntries()[1:]
	writeZip(t, path, entries, "")

	report, err := Rewrite(path, Options{Temp: SystemTemp{Dir: t.TempDir()}})
	if err != nil {
		t.Fatalf("Rewrite() error: %v", err)
	}
	if report.DescriptorFound {
		t.Error("DescriptorFound = true, want false")
	}

	names, contents := readZip(t, path)
	if !reflect.DeepEqual(names, []string{"asset1.png", "asset2.svg"}) {
		t.Errorf("entries = %v", names)
	}
	for _, e := range entries {
		if !bytes.Equal(contents[e.name], e.data) {
			t.Errorf("%s changed", e.name)
		}
	}
}

func TestRewriteEmptyArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.sb3")
	writeZip(t, path, nil, "")

	report, err := Rewrite(path, Options{Temp: SystemTemp{Dir: t.TempDir()}})
	if err != nil {
		t.Fatalf("Rewrite() error: %v", err)
	}
	if report.Entries != 0 || report.DescriptorFound {
		t.Errorf("report = %+v, want zero", report)
	}
}

func TestRewriteMalformedDescriptorLeavesArchive(t *testing.T) {
	dir := t.TempDir()
	tempDir := t.TempDir()
	path := filepath.Join(dir, "broken.sb3")
	entries := defaultEntries()
	entries[0].data = []byte(`"not json`)
	writeZip(t, path, entries, "")

	before := mustHash(t, path)
	_, err := Rewrite(path, Options{Temp: SystemTemp{Dir: tempDir}})
	if err == nil {
		t.Fatal("Rewrite() succeeded, want error")
	}
	if !errors.Is(err, errors.ErrCodeMalformedDescriptor) {
		t.Errorf("code = %v, want %v", errors.GetCode(err), errors.ErrCodeMalformedDescriptor)
	}
	if after := mustHash(t, path); after != before {
		t.Errorf("archive changed on failure: %s -> %s", before, after)
	}
	assertEmptyDir(t, tempDir)
}

func TestRewriteTransformError(t *testing.T) {
	dir := t.TempDir()
	tempDir := t.TempDir()
	path := filepath.Join(dir, "game.sb3")
	writeZip(t, path, defaultEntries(), "")

	sentinel := stderrors.New("boom")
	before := mustHash(t, path)
	_, err := Rewrite(path, Options{
		Temp:      SystemTemp{Dir: tempDir},
		Transform: func([]byte) ([]byte, error) { return nil, sentinel },
	})
	if !stderrors.Is(err, sentinel) {
		t.Fatalf("Rewrite() error = %v, want %v", err, sentinel)
	}
	if after := mustHash(t, path); after != before {
		t.Error("archive changed on failure")
	}
	assertEmptyDir(t, tempDir)
}

func TestRewriteOpenErrors(t *testing.T) {
	dir := t.TempDir()

	notZip := filepath.Join(dir, "plain.sb3")
	if err := os.WriteFile(notZip, []byte("hello, not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	subdir := filepath.Join(dir, "folder.sb3")
	if err := os.Mkdir(subdir, 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		code errors.Code
	}{
		{"missing", filepath.Join(dir, "missing.sb3"), errors.ErrCodeArchiveNotFound},
		{"not a zip", notZip, errors.ErrCodeArchiveUnreadable},
		{"directory", subdir, errors.ErrCodeArchiveUnreadable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			_, err := Rewrite(tt.path, Options{Temp: SystemTemp{Dir: tempDir}})
			if !errors.Is(err, tt.code) {
				t.Errorf("Rewrite() code = %v, want %v (err: %v)", errors.GetCode(err), tt.code, err)
			}
			assertEmptyDir(t, tempDir)
		})
	}

	if data, _ := os.ReadFile(notZip); string(data) != "hello, not a zip" {
		t.Error("non-zip file was modified")
	}
}

type failingTemp struct{ err error }

func (f failingTemp) Create() (*os.File, error) { return nil, f.err }

// readOnlyTemp hands out a file opened without write access.
type readOnlyTemp struct{ dir string }

func (r readOnlyTemp) Create() (*os.File, error) {
	name := filepath.Join(r.dir, "readonly.sb3")
	if err := os.WriteFile(name, nil, 0o600); err != nil {
		return nil, err
	}
	return os.Open(name)
}

func TestRewriteWriteFailure(t *testing.T) {
	tests := []struct {
		name string
		temp func(t *testing.T) (TempProvider, string)
	}{
		{
			name: "temp create fails",
			temp: func(t *testing.T) (TempProvider, string) {
				return failingTemp{err: os.ErrPermission}, t.TempDir()
			},
		},
		{
			name: "temp not writable",
			temp: func(t *testing.T) (TempProvider, string) {
				dir := t.TempDir()
				return readOnlyTemp{dir: dir}, dir
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "game.sb3")
			writeZip(t, path, defaultEntries(), "")
			before := mustHash(t, path)

			provider, tempDir := tt.temp(t)
			_, err := Rewrite(path, Options{Temp: provider})
			if !errors.Is(err, errors.ErrCodeWriteFailure) {
				t.Fatalf("Rewrite() code = %v, want %v (err: %v)", errors.GetCode(err), errors.ErrCodeWriteFailure, err)
			}
			if after := mustHash(t, path); after != before {
				t.Error("archive changed on failure")
			}
			assertEmptyDir(t, tempDir)
		})
	}
}

func TestRewriteCustomEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.sb3")
	writeZip(t, path, []testEntry{
		{name: "project.json", data: []byte(`untouched`), method: zip.Deflate},
		{name: "data/project.json", data: []byte(testDescriptor), method: zip.Store},
	}, "")

	report, err := Rewrite(path, Options{Entry: "data/project.json", Temp: SystemTemp{Dir: t.TempDir()}})
	if err != nil {
		t.Fatalf("Rewrite() error: %v", err)
	}
	if !report.DescriptorFound {
		t.Error("DescriptorFound = false, want true")
	}

	_, contents := readZip(t, path)
	if string(contents["project.json"]) != "untouched" {
		t.Errorf("project.json = %q, want untouched", contents["project.json"])
	}
	want, _ := descriptor.Transform([]byte(testDescriptor))
	if !jsonEqual(t, contents["data/project.json"], want) {
		t.Errorf("data/project.json = %s", contents["data/project.json"])
	}
}

func TestRewriteInvalidEntryName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.sb3")
	writeZip(t, path, defaultEntries(), "")

	_, err := Rewrite(path, Options{Entry: "../project.json"})
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("Rewrite() code = %v, want %v", errors.GetCode(err), errors.ErrCodeInvalidInput)
	}
}

func TestRewritePreservesArchiveComment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.sb3")
	writeZip(t, path, defaultEntries(), "made by the editor")

	if _, err := Rewrite(path, Options{Temp: SystemTemp{Dir: t.TempDir()}}); err != nil {
		t.Fatalf("Rewrite() error: %v", err)
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	if r.Comment != "made by the editor" {
		t.Errorf("comment = %q, want %q", r.Comment, "made by the editor")
	}
}

func TestRewritePreservesFileMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}
	path := filepath.Join(t.TempDir(), "game.sb3")
	writeZip(t, path, defaultEntries(), "")
	if err := os.Chmod(path, 0o640); err != nil {
		t.Fatal(err)
	}

	if _, err := Rewrite(path, Options{Temp: SystemTemp{Dir: t.TempDir()}}); err != nil {
		t.Fatalf("Rewrite() error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Errorf("mode = %v, want %v", info.Mode().Perm(), os.FileMode(0o640))
	}
}

func TestRewriteTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.sb3")
	writeZip(t, path, defaultEntries(), "")
	opts := Options{Temp: SystemTemp{Dir: t.TempDir()}}

	if _, err := Rewrite(path, opts); err != nil {
		t.Fatalf("first Rewrite() error: %v", err)
	}
	_, first := readZip(t, path)
	if _, err := Rewrite(path, opts); err != nil {
		t.Fatalf("second Rewrite() error: %v", err)
	}
	_, second := readZip(t, path)

	if !jsonEqual(t, first["project.json"], second["project.json"]) {
		t.Errorf("second pass changed descriptor: %s -> %s", first["project.json"], second["project.json"])
	}
	if !bytes.Equal(second["asset1.png"], pngBytes) {
		t.Error("asset1.png changed on second pass")
	}
}
