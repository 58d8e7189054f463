package archive

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zip"

	"github.com/matzehuels/sb3fix/pkg/descriptor"
	"github.com/matzehuels/sb3fix/pkg/errors"
)

// TransformFunc rewrites the payload of the target entry.
type TransformFunc func(raw []byte) ([]byte, error)

// Options configures a Rewrite.
type Options struct {
	// Entry is the name of the entry to transform. Defaults to project.json.
	Entry string

	// Transform is applied to the entry payload. Defaults to descriptor.Transform.
	Transform TransformFunc

	// Temp provides the file the new container is built in. Defaults to SystemTemp{}.
	Temp TempProvider

	// Logger receives debug progress. Defaults to a discarding logger.
	Logger *log.Logger
}

func (o *Options) setDefaults() {
	if o.Entry == "" {
		o.Entry = descriptor.DefaultEntry
	}
	if o.Transform == nil {
		o.Transform = descriptor.Transform
	}
	if o.Temp == nil {
		o.Temp = SystemTemp{}
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
}

// Report describes a completed Rewrite.
type Report struct {
	Entries         int  // entries written to the new container
	DescriptorFound bool // whether the target entry was present
}

// Rewrite rebuilds the archive at path with the target entry passed through
// opts.Transform and every other entry copied verbatim, then atomically
// replaces path with the result.
//
// If the target entry does not exist the archive is still rewritten, as an
// unmodified copy, and Report.DescriptorFound is false.
//
// On any error the archive at path is left untouched and no temporary files
// remain.
func Rewrite(path string, opts Options) (*Report, error) {
	opts.setDefaults()
	if err := errors.ValidateEntryName(opts.Entry); err != nil {
		return nil, err
	}
	logger := opts.Logger

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeArchiveNotFound, err, "archive %s not found", path)
		}
		return nil, errors.Wrap(errors.ErrCodeArchiveUnreadable, err, "stat %s", path)
	}
	if info.IsDir() {
		return nil, errors.New(errors.ErrCodeArchiveUnreadable, "%s is a directory", path)
	}

	src, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeArchiveUnreadable, err, "open %s", path)
	}
	defer src.Close()

	tmp, err := opts.Temp.Create()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeWriteFailure, err, "create temp archive")
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()
	logger.Debug("building new archive", "temp", tmpName, "entries", len(src.File))

	report, err := copyEntries(tmp, &src.Reader, opts)
	if err != nil {
		return nil, err
	}

	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		return nil, errors.Wrap(errors.ErrCodeWriteFailure, err, "chmod temp archive")
	}
	if err := tmp.Sync(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeWriteFailure, err, "sync temp archive")
	}
	if err := tmp.Close(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeWriteFailure, err, "close temp archive")
	}
	if err := src.Close(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeArchiveUnreadable, err, "close %s", path)
	}

	if err := replace(tmpName, path, info.Mode().Perm(), logger); err != nil {
		return nil, errors.Wrap(errors.ErrCodeWriteFailure, err, "replace %s", path)
	}
	committed = true
	logger.Debug("archive replaced", "path", path)

	return report, nil
}

// copyEntries writes every entry of src to w in order, transforming the
// target entry.
func copyEntries(w io.Writer, src *zip.Reader, opts Options) (*Report, error) {
	zw := zip.NewWriter(w)
	if err := zw.SetComment(src.Comment); err != nil {
		return nil, errors.Wrap(errors.ErrCodeWriteFailure, err, "set archive comment")
	}

	report := &Report{}
	for _, f := range src.File {
		if f.Name == opts.Entry {
			report.DescriptorFound = true
			if err := rewriteEntry(zw, f, opts.Transform); err != nil {
				return nil, err
			}
			opts.Logger.Debug("rewrote entry", "name", f.Name)
		} else {
			if err := zw.Copy(f); err != nil {
				return nil, errors.Wrap(errors.ErrCodeWriteFailure, err, "copy entry %s", f.Name)
			}
		}
		report.Entries++
	}

	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeWriteFailure, err, "finish temp archive")
	}
	return report, nil
}

// rewriteEntry reads f in full, transforms it and writes the result under the
// same name, keeping its timestamps, comment and attributes. Entries stored
// uncompressed stay uncompressed; everything else is deflated.
func rewriteEntry(zw *zip.Writer, f *zip.File, transform TransformFunc) error {
	rc, err := f.Open()
	if err != nil {
		return errors.Wrap(errors.ErrCodeArchiveUnreadable, err, "open entry %s", f.Name)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return errors.Wrap(errors.ErrCodeArchiveUnreadable, err, "read entry %s", f.Name)
	}

	out, err := transform(data)
	if err != nil {
		return err
	}

	method := zip.Deflate
	if f.Method == zip.Store {
		method = zip.Store
	}
	hdr := &zip.FileHeader{
		Name:           f.Name,
		Comment:        f.Comment,
		Method:         method,
		Modified:       f.Modified,
		CreatorVersion: f.CreatorVersion,
		ExternalAttrs:  f.ExternalAttrs,
	}
	ew, err := zw.CreateHeader(hdr)
	if err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailure, err, "create entry %s", f.Name)
	}
	if _, err := ew.Write(out); err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailure, err, "write entry %s", f.Name)
	}
	return nil
}
