// Package archive packs directory trees into zip archives and unpacks
// them again, reproducing the original layout exactly.
//
// Entry names are relative to the archived directory and always use
// forward slashes. Extraction rejects names that would escape the
// destination.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

// ErrUnsafePath is returned for archive entries that would be written
// outside the destination directory.
var ErrUnsafePath = errors.New("unsafe path in archive")

// Entry describes one file in an archive.
type Entry struct {
	Name     string    `json:"name"`
	Size     uint64    `json:"size"`
	Modified time.Time `json:"modified"`
	Dir      bool      `json:"dir,omitempty"`
}

// Create writes the contents of srcDir to w as a zip archive.
func Create(fs afero.Fs, srcDir string, w io.Writer) error {
	zw := zip.NewWriter(w)

	err := afero.Walk(fs, srcDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(rel)

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = name
		if info.IsDir() {
			header.Name += "/"
			header.Method = zip.Store
			_, err := zw.CreateHeader(header)
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		header.Method = zip.Deflate

		dst, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		src, err := fs.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(dst, src)
		return err
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("archive %s: %w", srcDir, err)
	}
	return zw.Close()
}

// CreateFile archives srcDir into a new file at archivePath. A partially
// written archive is removed on failure.
func CreateFile(fs afero.Fs, srcDir, archivePath string) (err error) {
	if err := fs.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return err
	}
	f, err := fs.Create(archivePath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			fs.Remove(archivePath)
		}
	}()
	return Create(fs, srcDir, f)
}

// Extract unpacks the zip archive in r into destDir, creating it.
func Extract(fs afero.Fs, r io.ReaderAt, size int64, destDir string) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	if err := fs.MkdirAll(destDir, 0755); err != nil {
		return err
	}

	for _, f := range zr.File {
		target, err := safeTarget(destDir, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := fs.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		if err := extractFile(fs, f, target); err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return nil
}

// ExtractFile unpacks the archive stored at archivePath into destDir.
func ExtractFile(fs afero.Fs, archivePath, destDir string) error {
	f, err := fs.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return Extract(fs, f, info.Size(), destDir)
}

func extractFile(fs afero.Fs, f *zip.File, target string) error {
	if err := fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	dst, err := fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return fs.Chtimes(target, f.Modified, f.Modified)
}

// safeTarget resolves an entry name below destDir.
func safeTarget(destDir, name string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") || filepath.VolumeName(clean) != "" {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	target, err := securejoin.SecureJoin(destDir, filepath.FromSlash(clean))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrUnsafePath, name, err)
	}
	return target, nil
}

// Entries lists the contents of the archive at archivePath.
func Entries(fs afero.Fs, archivePath string) ([]Entry, error) {
	f, err := fs.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	entries := make([]Entry, 0, len(zr.File))
	for _, zf := range zr.File {
		entries = append(entries, Entry{
			Name:     strings.TrimSuffix(zf.Name, "/"),
			Size:     zf.UncompressedSize64,
			Modified: zf.Modified,
			Dir:      zf.FileInfo().IsDir(),
		})
	}
	return entries, nil
}

// CopyTree copies the directory tree at src to dst.
func CopyTree(fs afero.Fs, src, dst string) error {
	return afero.Walk(fs, src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return fs.MkdirAll(target, info.Mode().Perm()|0700)
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		in, err := fs.Open(p)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
}
