package auth

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func webhookHandler(secret string) (http.Handler, *bool) {
	called := new(bool)
	mw := RequireWebhookSignature("X-Webhook-Signature", func() string { return secret })
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		// Body must survive the signature check for downstream decoding.
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	return handler, called
}

func TestRequireWebhookSignatureAcceptsValidSignature(t *testing.T) {
	body := []byte(`{"event":"charge.completed"}`)
	handler, called := webhookHandler("topsecret")

	req := httptest.NewRequest(http.MethodPost, "/payment/callback", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", SignWebhookBody("topsecret", body))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !*called {
		t.Fatal("expected downstream handler to run")
	}
}

func TestRequireWebhookSignatureAcceptsPrefixedSignature(t *testing.T) {
	body := []byte(`{"event":"charge.completed"}`)
	handler, _ := webhookHandler("topsecret")

	req := httptest.NewRequest(http.MethodPost, "/payment/callback", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", "sha256="+SignWebhookBody("topsecret", body))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequireWebhookSignatureRejectsMismatch(t *testing.T) {
	body := []byte(`{"event":"charge.completed"}`)
	handler, called := webhookHandler("topsecret")

	req := httptest.NewRequest(http.MethodPost, "/payment/callback", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", SignWebhookBody("wrong-secret", body))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if *called {
		t.Fatal("handler must not run on signature mismatch")
	}
}

func TestRequireWebhookSignatureRejectsMissingHeader(t *testing.T) {
	handler, called := webhookHandler("topsecret")

	req := httptest.NewRequest(http.MethodPost, "/payment/callback", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if *called {
		t.Fatal("handler must not run without signature")
	}
}

func TestRequireWebhookSignatureEmptySecretDisablesValidation(t *testing.T) {
	handler, called := webhookHandler("")

	req := httptest.NewRequest(http.MethodPost, "/payment/callback", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !*called {
		t.Fatal("expected pass-through when secret is empty")
	}
}
