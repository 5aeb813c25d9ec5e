package firebase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	credentialspb "cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
)

const (
	defaultURLTTL = 15 * time.Minute
	maxURLTTL     = time.Hour
)

// BlobStore keeps group images in a Cloud Storage bucket.
type BlobStore struct {
	client *storage.Client
	iam    *credentials.IamCredentialsClient
	bucket string
	signer string // service account email used for V4 signing
}

func NewBlobStore(c *Clients, signerEmail string) (*BlobStore, error) {
	if c == nil || c.Storage == nil || c.Bucket == "" {
		return nil, fmt.Errorf("FIREBASE_STORAGE_BUCKET is not set")
	}
	return &BlobStore{client: c.Storage, iam: c.IAM, bucket: c.Bucket, signer: signerEmail}, nil
}

func (b *BlobStore) Put(ctx context.Context, path string, r io.Reader, contentType string) error {
	w := b.client.Bucket(b.bucket).Object(path).NewWriter(ctx)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return nil
}

// Delete removes the object; a missing object is not an error.
func (b *BlobStore) Delete(ctx context.Context, path string) error {
	err := b.client.Bucket(b.bucket).Object(path).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// DownloadURL returns a signed GET URL for the object.
func (b *BlobStore) DownloadURL(ctx context.Context, path string) (string, error) {
	url, _, err := b.SignedURL(ctx, "GET", path, "", defaultURLTTL)
	return url, err
}

// SignedURL returns a V4 signed URL for method on path.
func (b *BlobStore) SignedURL(ctx context.Context, method, path, contentType string, ttl time.Duration) (string, time.Time, error) {
	if b.signer == "" {
		return "", time.Time{}, fmt.Errorf("SIGNED_URL_SERVICE_ACCOUNT_EMAIL is not set")
	}
	if b.iam == nil {
		return "", time.Time{}, fmt.Errorf("IAM credentials client not available")
	}
	if ttl <= 0 || ttl > maxURLTTL {
		ttl = defaultURLTTL
	}
	exp := time.Now().Add(ttl)

	opts := &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         method,
		Expires:        exp,
		GoogleAccessID: b.signer,
		SignBytes: func(p []byte) ([]byte, error) {
			resp, err := b.iam.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", b.signer),
				Payload: p,
			})
			if err != nil {
				return nil, err
			}
			return resp.SignedBlob, nil
		},
	}
	if method == "PUT" {
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		opts.ContentType = contentType
	}

	url, err := storage.SignedURL(b.bucket, path, opts)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign url (check service account + permissions): %w", err)
	}
	return url, exp, nil
}
