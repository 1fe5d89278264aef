package storage

import (
	"crypto/md5"  //nolint:gosec
	"crypto/sha1" //nolint:gosec
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
)

// BlobInfo describes content written to the blob store.
type BlobInfo struct {
	SHA256  string
	SHA1    string
	MD5     string
	Size    int64
	Path    string
	Existed bool
}

// BlobStore keeps file contents addressed by their sha256 digest.
type BlobStore struct {
	fs *LocalStorage
}

// NewBlobStore prepares the blob area under baseDir.
func NewBlobStore(baseDir string) (*BlobStore, error) {
	fs, err := NewLocalStorage(baseDir)
	if err != nil {
		return nil, err
	}
	return &BlobStore{fs: fs}, nil
}

// Put streams r into the store, hashing it on the fly. Content already
// present is not written twice; the returned info then has Existed set.
func (b *BlobStore) Put(r io.Reader) (*BlobInfo, error) {
	tmp, err := b.fs.CreateTemp()
	if err != nil {
		return nil, err
	}
	md5h := md5.New()   //nolint:gosec
	sha1h := sha1.New() //nolint:gosec
	sha256h := sha256.New()

	size, err := io.Copy(io.MultiWriter(tmp, md5h, sha1h, sha256h), r)
	if err != nil {
		tmp.Close()           //nolint:errcheck
		os.Remove(tmp.Name()) //nolint:errcheck
		return nil, fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()           //nolint:errcheck
		os.Remove(tmp.Name()) //nolint:errcheck
		return nil, fmt.Errorf("sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return nil, fmt.Errorf("close blob: %w", err)
	}

	info := &BlobInfo{
		SHA256: hex.EncodeToString(sha256h.Sum(nil)),
		SHA1:   hex.EncodeToString(sha1h.Sum(nil)),
		MD5:    hex.EncodeToString(md5h.Sum(nil)),
		Size:   size,
	}
	info.Path = BlobPath(info.SHA256)

	if b.fs.Exists(info.Path) {
		os.Remove(tmp.Name()) //nolint:errcheck
		info.Existed = true
		return info, nil
	}
	if err := b.fs.Commit(tmp.Name(), info.Path); err != nil {
		return nil, err
	}
	return info, nil
}

// Open returns the stored content at the relative blob path.
func (b *BlobStore) Open(rel string) (*os.File, error) {
	return b.fs.Open(rel)
}

// BlobPath is the relative location of content with the given sha256.
func BlobPath(sha256 string) string {
	if len(sha256) < 2 {
		return sha256
	}
	return path.Join(sha256[:2], sha256)
}
