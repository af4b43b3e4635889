package swagger

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func serve(mux *http.ServeMux, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestDocsRoutes(t *testing.T) {
	convey.Convey("Given the docs routes", t, func() {
		mux := http.NewServeMux()
		Register(context.Background(), mux)

		convey.Convey("When fetching the OpenAPI document", func() {
			w := serve(mux, "/openapi.yaml", nil)

			convey.Convey("Then the embedded document is returned with an ETag", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "application/yaml; charset=utf-8")
				convey.So(w.Header().Get("ETag"), convey.ShouldEqual, openAPIETag)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "/job-worth/rank")
			})
		})

		convey.Convey("When the client already holds the document", func() {
			w := serve(mux, "/openapi.yaml", http.Header{"If-None-Match": {openAPIETag}})

			convey.Convey("Then nothing is resent", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusNotModified)
				convey.So(w.Body.Len(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the client accepts gzip", func() {
			w := serve(mux, "/openapi.yaml", http.Header{"Accept-Encoding": {"gzip"}})

			convey.Convey("Then the document is compressed", func() {
				convey.So(w.Header().Get("Content-Encoding"), convey.ShouldEqual, "gzip")
				zr, err := gzip.NewReader(w.Body)
				convey.So(err, convey.ShouldBeNil)
				raw, err := io.ReadAll(zr)
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(raw), convey.ShouldEqual, string(OpenAPI))
			})
		})

		convey.Convey("When fetching the docs page", func() {
			w := serve(mux, "/api-docs", nil)

			convey.Convey("Then ReDoc is loaded from the pinned bundle", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "text/html; charset=utf-8")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "redoc-container")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, redocURL)
			})
		})
	})

	convey.Convey("Given a nil mux", t, func() {
		convey.So(func() { Register(context.Background(), nil) }, convey.ShouldPanic)
	})
}
