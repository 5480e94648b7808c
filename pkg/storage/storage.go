package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by Open when the object does not exist.
	ErrNotFound = errors.New("storage: object not found")
	// ErrInvalidKey is returned for keys that are empty or escape the store root.
	ErrInvalidKey = errors.New("storage: invalid object key")
)

// Key prefixes for generated and uploaded assets.
const (
	PrefixQRCodes      = "qr"
	PrefixCertificates = "certificates"
	PrefixProducts     = "products"
)

// Object describes a stored asset returned by List.
type Object struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Store is the asset store shared by QR codes, certificate PDFs and product images.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. A missing object is not an error.
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Object, error)
	Ping(ctx context.Context) error
}

// CleanKey normalises a slash separated key and rejects anything that could
// resolve outside the store root.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" || strings.HasPrefix(key, "/") || strings.ContainsRune(key, 0) {
		return "", ErrInvalidKey
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return "", ErrInvalidKey
		}
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == "" {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

// QRCodeKey is the storage key for a rendered QR image.
func QRCodeKey(filename string) string {
	return PrefixQRCodes + "/" + filename
}

// CertificateKey is the storage key for a rendered certificate PDF.
func CertificateKey(certificateNumber string) string {
	return fmt.Sprintf("%s/%s.pdf", PrefixCertificates, certificateNumber)
}

// ProductImageKey is the storage key for an uploaded product image.
func ProductImageKey(productID string, unixMillis int64) string {
	return fmt.Sprintf("%s/%s/image-%d.png", PrefixProducts, productID, unixMillis)
}
