package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when the archive holds no entry with the requested name
var ErrNotFound = errors.New("file not found in archive")

// ExtractFromTarGz copies the first entry whose base name is fileName to destPath
func ExtractFromTarGz(archivePath, destPath, fileName string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || filepath.Base(hdr.Name) != fileName {
			continue
		}
		return writeFile(destPath, tr, os.FileMode(hdr.Mode))
	}
	return fmt.Errorf("%w: %s", ErrNotFound, fileName)
}

// ExtractFromZip copies the first entry whose base name is fileName to destPath
func ExtractFromZip(archivePath, destPath, fileName string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() || filepath.Base(entry.Name) != fileName {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		return writeFile(destPath, rc, entry.Mode())
	}
	return fmt.Errorf("%w: %s", ErrNotFound, fileName)
}

func writeFile(destPath string, r io.Reader, mode os.FileMode) error {
	if mode == 0 {
		mode = 0644
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %s: %w", destPath, err)
	}
	return out.Close()
}
