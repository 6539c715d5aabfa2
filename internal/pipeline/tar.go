package pipeline

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
)

// Extracts the first regular file from a tar stream to a host path.
//
// Container copies arrive as single-entry tar streams. The file is written
// with its archived mode, and the entry's header is returned so callers can
// record the original name and mode.
func extractTarFile(r io.Reader, dest string) (*tar.Header, error) {
	tr := tar.NewReader(r)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil, errors.New("no file entry in tar stream")
		}
		if err != nil {
			return nil, err
		}

		if header.Typeflag != tar.TypeReg {
			continue
		}

		f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fs.FileMode(header.Mode)&fs.ModePerm)
		if err != nil {
			return nil, err
		}

		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return nil, err
		}

		return header, f.Close()
	}
}

// Streams a host file as a single-entry tar archive under the given name
// and mode. The returned reader is fed by a goroutine; read errors from the
// host file surface as stream errors on the reader.
func tarFileStream(hostPath, name string, mode fs.FileMode) io.Reader {
	pr, pw := io.Pipe()

	go func() {
		pw.CloseWithError(writeTarFile(pw, hostPath, name, mode))
	}()

	return pr
}

// Writes a host file to w as a single-entry tar archive.
func writeTarFile(w io.Writer, hostPath, name string, mode fs.FileMode) error {
	info, err := os.Stat(hostPath)
	if err != nil {
		return err
	}

	tw := tar.NewWriter(w)

	header := &tar.Header{
		Name:    path.Base(name),
		Mode:    int64(mode & fs.ModePerm),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	f, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("archiving %s: %w", hostPath, err)
	}

	return tw.Close()
}
