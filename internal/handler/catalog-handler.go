package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mactabak/internal/domain"
	"mactabak/internal/service"
)

func (h *Handler) handleGetProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := h.catalog.List(r.Context(), domain.ProductFilter{
		Category:      q.Get("category"),
		Search:        q.Get("search"),
		Sort:          domain.ProductSort(q.Get("sort")),
		AvailableOnly: true,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, products)
}

func (h *Handler) handleGetCategories(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, domain.Categories)
}

// --- Admin: list all products (including unavailable)
func (h *Handler) handleAdminListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := h.catalog.List(r.Context(), domain.ProductFilter{
		Category: q.Get("category"),
		Search:   q.Get("search"),
		Sort:     domain.ProductSort(q.Get("sort")),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, map[string]any{"success": true, "products": products})
}

func (h *Handler) handleAdminGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, map[string]any{"success": true, "product": p})
}

func (h *Handler) handleAdminAddProduct(w http.ResponseWriter, r *http.Request) {
	in, uploaded, err := h.productInput(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.catalog.Create(r.Context(), in)
	if err != nil {
		h.discardUpload(uploaded)
		h.writeError(w, r, err)
		return
	}
	jsonCreated(w, map[string]any{"success": true, "product": p})
}

func (h *Handler) handleAdminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	in, uploaded, err := h.productInput(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.catalog.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.discardUpload(uploaded)
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, map[string]any{"success": true, "product": p})
}

func (h *Handler) handleAdminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, map[string]any{"success": true, "product": p})
}

func (h *Handler) handleAdminSync(w http.ResponseWriter, r *http.Request) {
	n, err := h.catalog.Publish(r.Context())
	if err != nil {
		h.logger.Error("catalog sync failed", zap.Error(err))
		jsonErr(w, http.StatusBadGateway, "sync failed")
		return
	}
	jsonOK(w, map[string]any{"success": true, "products": n})
}

func (h *Handler) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.catalog.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := map[string]any{"success": true, "stats": st}
	if h.images != nil {
		if count, size, err := h.images.Usage(); err == nil {
			resp["images"] = map[string]any{"count": count, "bytes": size}
		}
	}
	jsonOK(w, resp)
}

// productInput reads the admin form either as JSON or as multipart with an
// optional photo. The returned reference names a freshly stored upload.
func (h *Handler) productInput(w http.ResponseWriter, r *http.Request) (service.ProductInput, string, error) {
	var in service.ProductInput
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err := decodeJSON(w, r, &in)
		return in, "", err
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil { // 10 MB
		return in, "", domain.NewValidationError("invalid multipart form")
	}
	form := r.MultipartForm.Value

	in.ID = firstNonEmpty(form["id"]...)
	in.Name = formString(form, "name")
	in.Category = formString(form, "category")
	in.Unit = formString(form, "unit")
	in.Description = formString(form, "description")
	in.Image = formString(form, "image")

	var err error
	if in.Price, err = formInt(form, "price"); err != nil {
		return in, "", err
	}
	if in.Weight, err = formInt(form, "weight"); err != nil {
		return in, "", err
	}
	if in.Stock, err = formInt(form, "stock"); err != nil {
		return in, "", err
	}
	if v, ok := form["isAvailable"]; ok && len(v) > 0 {
		b := v[0] == "true" || v[0] == "1" || v[0] == "on"
		in.IsAvailable = &b
	}

	file, header, err := formFile(r, "photo", "image")
	if err != nil {
		return in, "", err
	}
	if file == nil {
		return in, "", nil
	}
	defer file.Close()
	if h.images == nil {
		return in, "", domain.NewValidationError("image uploads are disabled")
	}

	ref, err := h.images.Save(file, header)
	if err != nil {
		return in, "", domain.NewValidationError("%s", err.Error())
	}
	in.Image = &ref
	return in, ref, nil
}

func (h *Handler) discardUpload(ref string) {
	if ref == "" || h.images == nil {
		return
	}
	if err := h.images.Remove(ref); err != nil {
		h.logger.Warn("remove rejected upload", zap.String("image", ref), zap.Error(err))
	}
}

func formFile(r *http.Request, fields ...string) (multipart.File, *multipart.FileHeader, error) {
	for _, f := range fields {
		file, header, err := r.FormFile(f)
		if err == nil {
			return file, header, nil
		}
		if !errors.Is(err, http.ErrMissingFile) {
			return nil, nil, domain.NewValidationError("invalid %s upload", f)
		}
	}
	return nil, nil, nil
}

func formString(form map[string][]string, key string) *string {
	v, ok := form[key]
	if !ok || len(v) == 0 {
		return nil
	}
	s := strings.TrimSpace(v[0])
	return &s
}

func formInt(form map[string][]string, key string) (*int64, error) {
	s := formString(form, key)
	if s == nil || *s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(*s, 10, 64)
	if err != nil {
		return nil, domain.NewValidationError("%s must be an integer", key)
	}
	return &n, nil
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
