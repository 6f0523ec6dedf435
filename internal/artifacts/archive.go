// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package artifacts

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// compressDir gzips dir into dir+".tar.gz", verifies the archive is readable,
// and only then removes the uncompressed tree.
func compressDir(dir string) error {
	archivePath := dir + ".tar.gz"
	if err := writeArchive(dir, archivePath); err != nil {
		os.Remove(archivePath)
		return err
	}
	if err := verifyArchive(archivePath); err != nil {
		os.Remove(archivePath)
		return fmt.Errorf("archive verification failed: %w", err)
	}
	return os.RemoveAll(dir)
}

func writeArchive(dir, archivePath string) error {
	f, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	parent := filepath.Dir(dir)
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = rel
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(tw, in)
		return err
	})
}

// verifyArchive reads the archive back fully to confirm it decompresses and
// parses before the source tree is deleted.
func verifyArchive(archivePath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		_, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
