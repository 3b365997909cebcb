package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const (
	defaultUploadExpiry = 15 * time.Minute
	maxUploadExpiry     = time.Hour
)

var allowedImageContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

var (
	// ErrContentTypeDenied indicates the upload content type is not an allowed image type.
	ErrContentTypeDenied = errors.New("storage: content type not allowed")

	errNoSigner      = errors.New("storage: signer is required")
	errInvalidBucket = errors.New("storage: bucket name is required")
	errInvalidObject = errors.New("storage: object name is required")
	errExpiryTooLong = errors.New("storage: expiry exceeds permitted maximum")
)

// Uploader issues V4 signed PUT URLs for direct-to-bucket product image uploads.
type Uploader struct {
	signer Signer
	bucket string
	expiry time.Duration
	now    func() time.Time
}

// UploaderOption customises Uploader behaviour.
type UploaderOption func(*Uploader)

// WithUploadExpiry overrides the signed URL lifetime.
func WithUploadExpiry(d time.Duration) UploaderOption {
	return func(u *Uploader) {
		if d > 0 {
			u.expiry = d
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) UploaderOption {
	return func(u *Uploader) {
		if clock != nil {
			u.now = clock
		}
	}
}

// NewUploader constructs an Uploader for the given assets bucket.
func NewUploader(signer Signer, bucket string, opts ...UploaderOption) (*Uploader, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}

	u := &Uploader{
		signer: signer,
		bucket: bucket,
		expiry: defaultUploadExpiry,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
	if u.expiry > maxUploadExpiry {
		return nil, errExpiryTooLong
	}
	return u, nil
}

// UploadURL describes a generated signed upload URL.
type UploadURL struct {
	URL         string
	Method      string
	ObjectPath  string
	PublicURL   string
	ContentType string
	ExpiresAt   time.Time
}

// ProductImageUploadURL signs a PUT URL for a product photo. The object path is
// derived from the product ID so re-uploads replace the previous image.
func (u *Uploader) ProductImageUploadURL(ctx context.Context, productID, contentType string) (UploadURL, error) {
	if u == nil || u.signer == nil {
		return UploadURL{}, errNoSigner
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return UploadURL{}, errInvalidObject
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := allowedImageContentTypes[contentType]
	if !ok {
		return UploadURL{}, ErrContentTypeDenied
	}
	if ctx != nil {
		select {
		case <-ctx.Done():
			return UploadURL{}, ctx.Err()
		default:
		}
	}

	object := path.Join("products", productID+ext)
	expiresAt := u.now().Add(u.expiry)

	signed, err := storage.SignedURL(u.bucket, object, &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         "PUT",
		GoogleAccessID: u.signer.Email(),
		ContentType:    contentType,
		Expires:        expiresAt,
		SignBytes: func(payload []byte) ([]byte, error) {
			return u.signer.SignBytes(ctx, payload)
		},
	})
	if err != nil {
		return UploadURL{}, fmt.Errorf("storage: sign upload url: %w", err)
	}

	return UploadURL{
		URL:         signed,
		Method:      "PUT",
		ObjectPath:  object,
		PublicURL:   fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucket, object),
		ContentType: contentType,
		ExpiresAt:   expiresAt,
	}, nil
}
