// Package bucket archives raw upload payloads on disk so the original
// spreadsheet bytes survive parsing and can be re-ingested or audited.
package bucket

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Bucket stores each upload as {dir}/{uploadID}{ext}.
type Bucket struct {
	dir string
}

// NewBucket creates the archive directory if needed.
func NewBucket(dir string) (*Bucket, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create bucket directory: %w", err)
	}
	return &Bucket{dir: dir}, nil
}

// Put archives the raw payload under the upload ID, keyed by the original
// file extension. Returns the archived path.
func (b *Bucket) Put(uploadID, filename string, data []byte) (string, error) {
	path := filepath.Join(b.dir, uploadID+normalizeExt(filename))
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to archive upload: %w", err)
	}
	return path, nil
}

// Get returns the archived payload for an upload ID, searching by ID prefix
// since the extension is not part of the key.
func (b *Bucket) Get(uploadID string) ([]byte, error) {
	path, err := b.find(uploadID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archived upload: %w", err)
	}
	return data, nil
}

// Remove deletes the archived payload for an upload ID.
func (b *Bucket) Remove(uploadID string) error {
	path, err := b.find(uploadID)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

func (b *Bucket) find(uploadID string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(b.dir, uploadID+".*"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		// Uploads without a recognizable extension archive bare.
		bare := filepath.Join(b.dir, uploadID)
		if _, statErr := os.Stat(bare); statErr == nil {
			return bare, nil
		}
		return "", fmt.Errorf("upload %q not found in bucket", uploadID)
	}
	return matches[0], nil
}

// normalizeExt returns the lowercased extension of the original filename, or
// "" when it has none.
func normalizeExt(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// DiskUsageBytes returns the total size in bytes of the given paths. Each
// path may be a file or a directory (recursively summed). Missing paths are
// skipped.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		if info.IsDir() {
			n, err := dirSize(p)
			if err != nil {
				return 0, err
			}
			total += n
		} else {
			total += info.Size()
		}
	}
	return total, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info != nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
