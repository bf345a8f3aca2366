package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// UploadStore owns the upload and index directories on disk.
type UploadStore struct {
	UploadDir string // absolute path of saved uploads
	IndexDir  string // absolute path of the persisted vector index
}

// NewUploadStore resolves both directories and creates them if needed.
func NewUploadStore(uploadDir, indexDir string) (*UploadStore, error) {
	uploadAbs, err := filepath.Abs(uploadDir)
	if err != nil {
		return nil, fmt.Errorf("could not determine absolute path for %s: %w", uploadDir, err)
	}
	indexAbs, err := filepath.Abs(indexDir)
	if err != nil {
		return nil, fmt.Errorf("could not determine absolute path for %s: %w", indexDir, err)
	}
	s := &UploadStore{UploadDir: uploadAbs, IndexDir: indexAbs}
	if err := s.ensureDirs(); err != nil {
		return nil, err
	}
	return s, nil
}

// sanitizeFilename ensures the filename is safe and within the upload directory.
func (s *UploadStore) sanitizeFilename(filename string) (string, error) {
	if !IsPDF(filename) {
		return "", fmt.Errorf("filename must end with .pdf")
	}
	// This prevents path traversal attacks (e.g., filename = "../../../etc/passwd")
	cleanPath := filepath.Join(s.UploadDir, filepath.Base(filename))
	if !strings.HasPrefix(cleanPath, s.UploadDir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid filename, attempts to escape upload directory")
	}
	return cleanPath, nil
}

// SavePDF writes r to the upload directory and returns the file path.
// An existing upload with the same name is replaced.
func (s *UploadStore) SavePDF(filename string, r io.Reader) (string, error) {
	path, err := s.sanitizeFilename(filename)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("could not create upload directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file '%s': %w", filepath.Base(path), err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write file '%s': %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close file '%s': %w", filepath.Base(path), err)
	}
	return path, nil
}

// Reset deletes both directories and recreates them empty.
func (s *UploadStore) Reset() error {
	for _, dir := range []string{s.IndexDir, s.UploadDir} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("could not remove %s: %w", dir, err)
		}
	}
	return s.ensureDirs()
}

// IndexDirExists reports whether the index directory is present.
func (s *UploadStore) IndexDirExists() bool {
	info, err := os.Stat(s.IndexDir)
	return err == nil && info.IsDir()
}

// IndexDirEmpty reports whether nothing has been persisted yet.
func (s *UploadStore) IndexDirEmpty() bool {
	entries, err := os.ReadDir(s.IndexDir)
	return err != nil || len(entries) == 0
}

func (s *UploadStore) ensureDirs() error {
	for _, dir := range []string{s.UploadDir, s.IndexDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("could not create %s: %w", dir, err)
		}
	}
	return nil
}
