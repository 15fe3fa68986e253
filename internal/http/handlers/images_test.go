package handlers

import (
	"bytes"
	"encoding/base64"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/douremember/go-descriptions-backend/internal/domain"
	"github.com/douremember/go-descriptions-backend/internal/http/middleware"
)

func TestCreateImage_JSONBase64(t *testing.T) {
	ts := newTestServer(t)

	img := ts.uploadImage("cg1")
	if img.ID == "" || img.CaregiverID != "cg1" || img.SessionID != nil {
		t.Fatalf("unexpected image: %+v", img)
	}
	if img.Format != "png" || img.URL == "" {
		t.Fatalf("store metadata missing: %+v", img)
	}
	if ts.store.Len() != 1 {
		t.Fatalf("store has %d objects", ts.store.Len())
	}
}

func TestCreateImage_DataURIPrefix(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodPost, "/images", "admin1", UploadImageRequest{
		BufferBase64: "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes),
	})
	expectStatus(t, w, http.StatusCreated)
}

func TestCreateImage_Multipart(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="cocina.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(pngBytes)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(middleware.HeaderUserID, "cg1")
	w := httptest.NewRecorder()
	ts.r.ServeHTTP(w, req)

	expectStatus(t, w, http.StatusCreated)
	if img := decode[domain.Image](t, w); img.CaregiverID != "cg1" {
		t.Fatalf("unexpected image: %+v", img)
	}
}

func TestCreateImage_Rejections(t *testing.T) {
	ts := newTestServer(t)
	enc := base64.StdEncoding.EncodeToString

	cases := []struct {
		name   string
		user   string
		body   any
		status int
		code   string
	}{
		{"patient", "p1", UploadImageRequest{BufferBase64: enc(pngBytes)}, http.StatusForbidden, "invalid_role"},
		{"unknown user", "ghost", UploadImageRequest{BufferBase64: enc(pngBytes)}, http.StatusNotFound, "not_found"},
		{"bad base64", "cg1", UploadImageRequest{BufferBase64: "%%%"}, http.StatusBadRequest, ErrCodeBadRequest},
		{"missing buffer", "cg1", `{}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"not an image", "cg1", UploadImageRequest{BufferBase64: enc([]byte("hola, esto es texto"))}, http.StatusBadRequest, "validation"},
		{"too large", "cg1", UploadImageRequest{BufferBase64: enc(bytes.Repeat([]byte{1}, 2<<10))}, http.StatusRequestEntityTooLarge, ErrCodeTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := ts.do(http.MethodPost, "/images", tc.user, tc.body)
			expectError(t, w, tc.status, tc.code)
		})
	}
	if ts.store.Len() != 0 {
		t.Fatalf("rejected uploads reached the store: %d", ts.store.Len())
	}
}

func TestGetImage_And_ListByCaregiver(t *testing.T) {
	ts := newTestServer(t)
	a := ts.uploadImage("cg1")
	ts.uploadImage("cg1")
	ts.uploadImage("cg1")
	ts.uploadImage("cg2")

	w := ts.do(http.MethodGet, "/images/"+a.ID, "", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[domain.Image](t, w); got.ID != a.ID {
		t.Fatalf("got %s", got.ID)
	}

	expectError(t, ts.do(http.MethodGet, "/images/nope", "", nil), http.StatusNotFound, "not_found")

	w = ts.do(http.MethodGet, "/caregivers/cg1/images?page=2&pageSize=2", "", nil)
	expectStatus(t, w, http.StatusOK)
	list := decode[ListResponse[domain.Image]](t, w)
	if list.Meta.Total != 3 || list.Meta.Page != 2 || list.Meta.LastPage != 2 || len(list.Data) != 1 {
		t.Fatalf("unexpected page: %+v", list.Meta)
	}

	w = ts.do(http.MethodGet, "/caregivers/nobody/images", "", nil)
	expectStatus(t, w, http.StatusOK)
	empty := decode[ListResponse[domain.Image]](t, w)
	if empty.Data == nil || len(empty.Data) != 0 || empty.Meta.LastPage != 1 {
		t.Fatalf("empty page should be [] with lastPage 1: %+v", empty)
	}
}

func TestUpdateImage_AttachDetach(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodPost, "/sessions", "cg1", CreateSessionRequest{})
	expectStatus(t, w, http.StatusCreated)
	sess := decode[domain.Session](t, w)
	img := ts.uploadImage("cg1")

	w = ts.do(http.MethodPatch, "/images/"+img.ID, "cg1", map[string]any{"sessionId": sess.ID})
	expectStatus(t, w, http.StatusOK)
	if got := decode[domain.Image](t, w); got.SessionID == nil || *got.SessionID != sess.ID {
		t.Fatalf("not attached: %+v", got)
	}

	// Another caregiver cannot touch it.
	w = ts.do(http.MethodPatch, "/images/"+img.ID, "cg2", map[string]any{"sessionId": nil})
	if w.Code < 400 {
		t.Fatalf("foreign caregiver detached image: %d", w.Code)
	}

	w = ts.do(http.MethodPatch, "/images/"+img.ID, "cg1", map[string]any{"sessionId": nil})
	expectStatus(t, w, http.StatusOK)
	if got := decode[domain.Image](t, w); got.SessionID != nil {
		t.Fatalf("not detached: %+v", got)
	}

	// Only sessionId is writable.
	w = ts.do(http.MethodPatch, "/images/"+img.ID, "cg1", map[string]any{"url": "https://evil.test/x.png"})
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest)
}

func TestDeleteImage(t *testing.T) {
	ts := newTestServer(t)
	img := ts.uploadImage("cg1")

	expectStatus(t, ts.do(http.MethodDelete, "/images/"+img.ID, "cg1", nil), http.StatusNoContent)
	expectError(t, ts.do(http.MethodGet, "/images/"+img.ID, "", nil), http.StatusNotFound, "not_found")
	if ts.store.Len() != 0 {
		t.Fatalf("stored object not removed")
	}
}
