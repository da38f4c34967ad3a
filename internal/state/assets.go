package state

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/sandboxx/internal/statelog"
)

// Assets moves binary files in and out of a sandbox and keeps their content
// in a blob store under its content address.
type Assets struct {
	transfer Transfer
	blobs    BlobStore
	rec      *Recorder

	mu       sync.Mutex
	uploaded []string
}

// NewAssets returns an Assets. When rec is non-nil each upload is also
// recorded as an fs.upload entry referencing the stored blob.
func NewAssets(transfer Transfer, blobs BlobStore, rec *Recorder) *Assets {
	return &Assets{transfer: transfer, blobs: blobs, rec: rec}
}

// UploadBuffer uploads data to remotePath and stores it as a blob. It returns
// the blob ref; identical content always gets the same ref.
func (a *Assets) UploadBuffer(ctx context.Context, data []byte, remotePath string) (string, error) {
	ref := statelog.BlobRef(data)
	if err := a.transfer.Upload(ctx, data, remotePath); err != nil {
		return "", fsError("upload", remotePath, err)
	}
	if err := a.blobs.SaveBlob(ctx, ref, data); err != nil {
		return "", fmt.Errorf("save blob for %s: %w", remotePath, err)
	}
	if a.rec != nil {
		if err := a.rec.record(ctx, opFSUpload, remotePath, ref); err != nil {
			return "", err
		}
	}

	a.mu.Lock()
	if !slices.Contains(a.uploaded, remotePath) {
		a.uploaded = append(a.uploaded, remotePath)
	}
	a.mu.Unlock()
	return ref, nil
}

// DownloadBuffer returns the content of remotePath.
func (a *Assets) DownloadBuffer(ctx context.Context, remotePath string) ([]byte, error) {
	data, err := a.transfer.Download(ctx, remotePath)
	if err != nil {
		return nil, fsError("download", remotePath, err)
	}
	return data, nil
}

// Persist downloads remotePath, stores it as a blob and returns its ref.
func (a *Assets) Persist(ctx context.Context, remotePath string) (string, error) {
	data, err := a.DownloadBuffer(ctx, remotePath)
	if err != nil {
		return "", err
	}
	ref := statelog.BlobRef(data)
	if err := a.blobs.SaveBlob(ctx, ref, data); err != nil {
		return "", fmt.Errorf("save blob for %s: %w", remotePath, err)
	}
	return ref, nil
}

// List returns the uploaded paths in first-upload order.
func (a *Assets) List() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.uploaded)
}
