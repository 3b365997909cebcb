package storage

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"strings"
	"testing"
	"time"
)

func testSigner(t *testing.T) *ServiceAccountSigner {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	raw, err := json.Marshal(map[string]string{
		"client_email": "signer@test-project.iam.gserviceaccount.com",
		"private_key":  string(pemBytes),
	})
	if err != nil {
		t.Fatalf("marshal key file: %v", err)
	}

	signer, err := NewServiceAccountSignerFromJSON(raw)
	if err != nil {
		t.Fatalf("NewServiceAccountSignerFromJSON: %v", err)
	}
	return signer
}

func TestProductImageUploadURL(t *testing.T) {
	signer := testSigner(t)
	fixed := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	uploader, err := NewUploader(signer, "frozen-haven-assets", WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}

	result, err := uploader.ProductImageUploadURL(context.Background(), "prod-001", "image/png")
	if err != nil {
		t.Fatalf("ProductImageUploadURL: %v", err)
	}

	if result.Method != "PUT" {
		t.Fatalf("expected PUT, got %s", result.Method)
	}
	if result.ObjectPath != "products/prod-001.png" {
		t.Fatalf("unexpected object path %s", result.ObjectPath)
	}
	if !strings.Contains(result.URL, "frozen-haven-assets") {
		t.Fatalf("signed URL missing bucket: %s", result.URL)
	}
	if got, want := result.ExpiresAt, fixed.Add(defaultUploadExpiry); !got.Equal(want) {
		t.Fatalf("expires at %v, want %v", got, want)
	}
	if result.PublicURL != "https://storage.googleapis.com/frozen-haven-assets/products/prod-001.png" {
		t.Fatalf("unexpected public URL %s", result.PublicURL)
	}
}

func TestProductImageUploadURLRejectsContentType(t *testing.T) {
	uploader, err := NewUploader(testSigner(t), "frozen-haven-assets")
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}

	if _, err := uploader.ProductImageUploadURL(context.Background(), "prod-001", "application/pdf"); err == nil {
		t.Fatal("expected content type rejection")
	}
}
