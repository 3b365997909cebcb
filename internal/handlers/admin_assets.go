package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/frozen-haven/api/internal/platform/httpx"
	"github.com/frozen-haven/api/internal/platform/storage"
	"github.com/frozen-haven/api/internal/services"
)

type imageUploadRequest struct {
	ContentType string `json:"contentType"`
}

type confirmImageRequest struct {
	ImageURL string `json:"imageUrl"`
}

// AdminAssetHandlers exposes signed upload URLs for product imagery.
type AdminAssetHandlers struct {
	uploader *storage.Uploader
	catalog  services.CatalogService
}

// NewAdminAssetHandlers constructs a new AdminAssetHandlers instance.
func NewAdminAssetHandlers(uploader *storage.Uploader, catalog services.CatalogService) *AdminAssetHandlers {
	return &AdminAssetHandlers{
		uploader: uploader,
		catalog:  catalog,
	}
}

// Routes registers the /admin/products asset endpoints.
func (h *AdminAssetHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/products/{productID}/image-url", h.createUploadURL)
	r.Post("/products/{productID}/image", h.confirmImage)
}

func (h *AdminAssetHandlers) createUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploader == nil {
		httpx.WriteError(ctx, w, httpx.NewError("uploads_unavailable", "image uploads unavailable", http.StatusServiceUnavailable))
		return
	}

	var req imageUploadRequest
	if err := decodeJSONBody(w, r, maxAdminBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Invalid JSON body", http.StatusBadRequest))
		return
	}

	upload, err := h.uploader.ProductImageUploadURL(ctx, chi.URLParam(r, "productID"), req.ContentType)
	if err != nil {
		if errors.Is(err, storage.ErrContentTypeDenied) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "contentType must be image/jpeg, image/png or image/webp", http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "Internal server error", http.StatusInternalServerError))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"upload": map[string]any{
			"url":         upload.URL,
			"method":      upload.Method,
			"objectPath":  upload.ObjectPath,
			"publicUrl":   upload.PublicURL,
			"contentType": upload.ContentType,
			"expiresAt":   upload.ExpiresAt,
		},
	})
}

// confirmImage persists the public URL once the back office reports the
// upload completed.
func (h *AdminAssetHandlers) confirmImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req confirmImageRequest
	if err := decodeJSONBody(w, r, maxAdminBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Invalid JSON body", http.StatusBadRequest))
		return
	}

	if err := h.catalog.SetProductImage(ctx, chi.URLParam(r, "productID"), req.ImageURL); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, nil)
}
