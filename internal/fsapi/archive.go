package fsapi

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/loykin/orchestrator/internal/orcherr"
)

// ExtractArchive extracts archivePath (.zip, .tar, .tar.gz, or .tgz) into
// destRoot. Every member path is verified with securejoin before being
// written; a member whose name would resolve outside destRoot aborts the
// whole extraction with orcherr.KindPathEscape rather than writing any more
// files — a zip bomb's directory traversal trick never gets a partial win.
//
// Uses the standard archive/zip, archive/tar, and compress/gzip packages:
// no third-party archive library appears anywhere in the retrieval corpus,
// and go-getter's own extraction is only reachable through a full Get()
// against a URL, not as a standalone "extract this local file" call.
func ExtractArchive(archivePath, destRoot string) error {
	switch {
	case strings.HasSuffix(archivePath, ".zip"):
		return extractZip(archivePath, destRoot)
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		return extractTar(archivePath, destRoot, true)
	case strings.HasSuffix(archivePath, ".tar"):
		return extractTar(archivePath, destRoot, false)
	default:
		return orcherr.New(orcherr.KindArchiveInvalid, "unsupported archive extension").WithDetail(archivePath)
	}
}

// escapesRoot reports whether an archive member name climbs above the
// extraction root through "..".
func escapesRoot(name string) bool {
	c := filepath.Clean(filepath.FromSlash(name))
	return c == ".." || strings.HasPrefix(c, ".."+string(filepath.Separator))
}

func extractZip(archivePath, destRoot string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return orcherr.Wrap(orcherr.KindArchiveInvalid, "failed to open zip archive", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if escapesRoot(f.Name) {
			return orcherr.New(orcherr.KindPathEscape, "archive member escapes destination").WithDetail(f.Name)
		}
		target, err := securejoin.SecureJoin(destRoot, f.Name)
		if err != nil {
			return orcherr.Wrap(orcherr.KindPathEscape, "", err).WithDetail(f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o750); err != nil {
				return orcherr.Wrap(orcherr.KindArchiveInvalid, "failed to create directory", err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return orcherr.Wrap(orcherr.KindArchiveInvalid, "failed to create parent directory", err)
		}
		if err := extractZipEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return orcherr.Wrap(orcherr.KindArchiveInvalid, "failed to open archive entry", err)
	}
	defer src.Close()
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
	if err != nil {
		return orcherr.Wrap(orcherr.KindArchiveInvalid, "failed to create extracted file", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return orcherr.Wrap(orcherr.KindArchiveInvalid, "failed to extract archive entry", err)
	}
	return nil
}

func extractTar(archivePath, destRoot string, gzipped bool) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return orcherr.Wrap(orcherr.KindArchiveInvalid, "failed to open tar archive", err)
	}
	defer f.Close()

	var r io.Reader = f
	if gzipped {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return orcherr.Wrap(orcherr.KindArchiveInvalid, "failed to open gzip stream", err)
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return orcherr.Wrap(orcherr.KindArchiveInvalid, "failed to read tar entry", err)
		}
		if escapesRoot(hdr.Name) {
			return orcherr.New(orcherr.KindPathEscape, "archive member escapes destination").WithDetail(hdr.Name)
		}
		target, err := securejoin.SecureJoin(destRoot, hdr.Name)
		if err != nil {
			return orcherr.Wrap(orcherr.KindPathEscape, "", err).WithDetail(hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o750); err != nil {
				return orcherr.Wrap(orcherr.KindArchiveInvalid, "failed to create directory", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
				return orcherr.Wrap(orcherr.KindArchiveInvalid, "failed to create parent directory", err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return orcherr.Wrap(orcherr.KindArchiveInvalid, "failed to create extracted file", err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				_ = out.Close()
				return orcherr.Wrap(orcherr.KindArchiveInvalid, "failed to extract archive entry", err)
			}
			_ = out.Close()
		default:
			// Symlinks, hardlinks, devices: skip rather than honor — an
			// archive member should never be able to plant a link that
			// later resolves outside destRoot.
		}
	}
}
