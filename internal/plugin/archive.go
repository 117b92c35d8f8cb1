// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"archive/zip"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/samber/oops"
	"golang.org/x/crypto/blake2b"
)

// ArchiveExt is the file extension of packaged plugins.
const ArchiveExt = ".zip"

// Archive is an open plugin artifact. It holds the backing file open until
// Close is called, so a loaded plugin keeps its artifact pinned exactly as
// long as it stays registered.
type Archive struct {
	path     string
	digest   string
	reader   *zip.ReadCloser
	manifest *Manifest

	closeOnce sync.Once
	closeErr  error
}

// OpenArchive opens the artifact at path and validates its manifest.
//
// Errors carry CodeInvalidArtifact when the file is missing or not a zip
// archive, and CodeInvalidManifest when plugin.yaml is absent or invalid.
func OpenArchive(path string) (*Archive, error) {
	digest, err := fileDigest(path)
	if err != nil {
		return nil, ErrInvalidArtifact(path, err)
	}

	zr, err := zip.OpenReader(filepath.Clean(path))
	if err != nil {
		return nil, ErrInvalidArtifact(path, err)
	}

	a := &Archive{path: path, digest: digest, reader: zr}

	data, err := a.ReadFile(ManifestFile)
	if err != nil {
		_ = zr.Close() //nolint:errcheck // open error takes precedence
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrInvalidManifest(path, oops.Errorf("%s not found in archive", ManifestFile))
		}
		return nil, ErrInvalidArtifact(path, err)
	}

	if err := ValidateSchema(data); err != nil {
		_ = zr.Close() //nolint:errcheck // validation error takes precedence
		return nil, ErrInvalidManifest(path, err)
	}

	m, err := ParseManifest(data)
	if err != nil {
		_ = zr.Close() //nolint:errcheck // validation error takes precedence
		return nil, ErrInvalidManifest(path, err)
	}
	a.manifest = m

	return a, nil
}

// Path returns the artifact path the archive was opened from.
func (a *Archive) Path() string { return a.path }

// Digest returns the hex blake2b-256 digest of the artifact file.
func (a *Archive) Digest() string { return a.digest }

// Manifest returns the validated manifest.
func (a *Archive) Manifest() *Manifest { return a.manifest }

// Open opens a file inside the archive. Names use forward slashes.
func (a *Archive) Open(name string) (fs.File, error) {
	//nolint:wrapcheck // fs.FS contract returns *fs.PathError unchanged
	return a.reader.Open(path.Clean(name))
}

// ReadFile reads a whole file from the archive.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	f, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only

	//nolint:wrapcheck // callers attach plugin context
	return io.ReadAll(f)
}

// Close releases the backing file. Safe to call more than once.
func (a *Archive) Close() error {
	a.closeOnce.Do(func() {
		if err := a.reader.Close(); err != nil {
			a.closeErr = oops.In("plugin").With("path", a.path).Wrap(err)
		}
	})
	return a.closeErr
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err //nolint:wrapcheck // wrapped by caller
	}
	defer f.Close() //nolint:errcheck // read-only

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err //nolint:wrapcheck // wrapped by caller
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err //nolint:wrapcheck // wrapped by caller
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
