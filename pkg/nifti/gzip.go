package nifti

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
)

// GzipSuffix is appended by Compress and stripped by Decompress.
const GzipSuffix = ".gz"

// Compress writes a gzip copy of path next to it and returns the new path.
// The source file is kept.
func Compress(path string) (string, error) {
	out := path + GzipSuffix
	err := transcode(path, out, func(dst io.Writer, src io.Reader) error {
		zw := gzip.NewWriter(dst)
		if _, err := io.Copy(zw, src); err != nil {
			return err
		}
		return zw.Close()
	})
	if err != nil {
		return "", fmt.Errorf("compress %s: %w", path, err)
	}
	return out, nil
}

// Decompress writes the uncompressed content of a .gz file next to it and
// returns the new path. The source file is kept.
func Decompress(path string) (string, error) {
	if !strings.HasSuffix(path, GzipSuffix) {
		return "", fmt.Errorf("decompress %s: missing %s suffix", path, GzipSuffix)
	}
	out := strings.TrimSuffix(path, GzipSuffix)
	err := transcode(path, out, func(dst io.Writer, src io.Reader) error {
		zr, err := gzip.NewReader(src)
		if err != nil {
			return err
		}
		defer func() { _ = zr.Close() }()
		_, err = io.Copy(dst, zr)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("decompress %s: %w", path, err)
	}
	return out, nil
}

// transcode streams src through fn into a new dst file.
func transcode(src, dst string, fn func(io.Writer, io.Reader) error) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	bw := bufio.NewWriter(out)
	if err := fn(bw, bufio.NewReader(in)); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if fi, err := os.Stat(dst); err == nil {
		log.WithFields(log.Fields{
			"from": src,
			"to":   dst,
			"size": humanize.Bytes(uint64(fi.Size())),
		}).Debug("Transcoded file")
	}
	return nil
}
