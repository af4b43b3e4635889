package api_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/worthrank/internal/adapters/http/api"
	"github.com/okian/worthrank/internal/adapters/repository"
	service "github.com/okian/worthrank/internal/app"
	"github.com/okian/worthrank/internal/domain/histogram"
	"github.com/okian/worthrank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// stubDeps returns canned errors for status mapping tests.
type stubDeps struct {
	err error
}

func (s *stubDeps) Submit(context.Context, service.SubmitInput) (service.SubmitResult, error) {
	return service.SubmitResult{}, s.err
}

func (s *stubDeps) RankOnly(context.Context, service.RankInput) (service.RankOnlyResult, error) {
	return service.RankOnlyResult{}, s.err
}

func (s *stubDeps) Evaluation(context.Context, string) (service.EvaluationResult, error) {
	return service.EvaluationResult{}, s.err
}

func (s *stubDeps) Statistics(context.Context) (service.Statistics, error) {
	return service.Statistics{}, s.err
}

func (s *stubDeps) RebuildHistogram(context.Context) (histogram.RebuildReport, error) {
	return histogram.RebuildReport{}, s.err
}

func newMux(deps api.Dependencies, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, opts...).Register(context.Background(), mux)
	return mux
}

func newServiceMux() (*http.ServeMux, *service.Service) {
	svc := service.New(service.WithLogger(logger.Nop()), service.WithMinSamples(1, 1))
	So(svc.Start(context.Background()), ShouldBeNil)
	return newMux(svc, api.WithAdminRoutes(true)), svc
}

func do(mux *http.ServeMux, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	var decoded map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	return w, decoded
}

func TestSubmitEndpoint(t *testing.T) {
	Convey("Given the API over an in-memory service", t, func() {
		mux, svc := newServiceMux()
		defer svc.Stop()
		ip := map[string]string{"X-Forwarded-For": "198.51.100.4, 10.0.0.1"}

		Convey("When posting a valid evaluation", func() {
			w, body := do(mux, http.MethodPost, "/job-worth", `{"formData":{"salary":1},"score":2.5}`, ip)

			Convey("Then it is stored and ranked", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(body["success"], ShouldEqual, true)
				So(body["id"], ShouldNotBeEmpty)
				So(body["score"], ShouldEqual, 2.5)
				So(body["rank"], ShouldEqual, 0)
				So(body["percentile"], ShouldEqual, "0.0")
				So(body["totalCount"], ShouldEqual, 1)
				So(body["showRanking"], ShouldEqual, true)
				_, cached := body["fromCache"]
				So(cached, ShouldBeFalse)
			})

			Convey("When the same client repeats it", func() {
				w, body := do(mux, http.MethodPost, "/job-worth", `{"formData":{"salary":1},"score":2.5}`, ip)

				Convey("Then the cached ranking is returned", func() {
					So(w.Code, ShouldEqual, http.StatusOK)
					So(body["fromCache"], ShouldEqual, true)
					So(body["totalCount"], ShouldEqual, 1)
					So(body["message"], ShouldEqual, service.MessageFastDuplicate)
				})
			})

			Convey("When the same client sends a different score", func() {
				_, body := do(mux, http.MethodPost, "/job-worth", `{"formData":{"salary":2},"score":3.5}`, ip)

				Convey("Then the durable layer answers", func() {
					So(body["fromCache"], ShouldEqual, true)
					So(body["message"], ShouldEqual, service.MessageDurableDuplicate)
				})
			})

			Convey("When fetching it by id", func() {
				id, _ := body["id"].(string)
				w, got := do(mux, http.MethodGet, "/job-worth/"+id, "", nil)

				Convey("Then the evaluation is returned with its rank", func() {
					So(w.Code, ShouldEqual, http.StatusOK)
					data, _ := got["data"].(map[string]any)
					So(data["id"], ShouldEqual, id)
					So(data["score"], ShouldEqual, 2.5)
					So(data["formData"], ShouldResemble, map[string]any{"salary": float64(1)})
					So(data["rank"], ShouldEqual, 0)
				})
			})
		})

		Convey("When the request is malformed", func() {
			cases := []string{
				`{"formData":{"a":1},"score":"high"}`,
				`{"formData":{"a":1}}`,
				`{"score":1.2}`,
				`{"formData":null,"score":1.2}`,
				`not json`,
			}
			for _, c := range cases {
				w, body := do(mux, http.MethodPost, "/job-worth", c, nil)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(body["success"], ShouldEqual, false)
				So(body["code"], ShouldEqual, "bad_request")
			}
		})

		Convey("When the method is wrong", func() {
			w, _ := do(mux, http.MethodGet, "/job-worth", "", nil)
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("When the id is unknown", func() {
			w, body := do(mux, http.MethodGet, "/job-worth/does-not-exist", "", nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(body["code"], ShouldEqual, "not_found")
		})
	})
}

func TestRankEndpoint(t *testing.T) {
	Convey("Given a service with one stored evaluation", t, func() {
		mux, svc := newServiceMux()
		defer svc.Stop()
		_, _ = do(mux, http.MethodPost, "/job-worth", `{"formData":{"a":1},"score":1.0}`, map[string]string{"X-Real-IP": "192.0.2.1"})

		Convey("When ranking a higher score read-only", func() {
			w, body := do(mux, http.MethodPost, "/job-worth/rank", `{"score":2.0}`, map[string]string{"X-Real-IP": "192.0.2.2"})

			Convey("Then the store answers without recording", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(body["percentile"], ShouldEqual, "100.0")
				So(body["rank"], ShouldEqual, 0)
				So(body["totalCount"], ShouldEqual, 1)
				So(body["fromCache"], ShouldEqual, false)

				stats, err := svc.Statistics(context.Background())
				So(err, ShouldBeNil)
				So(stats.Store.Total, ShouldEqual, 1)
			})
		})

		Convey("When the legacy path is used", func() {
			w, _ := do(mux, http.MethodPost, "/job-worth-rank", `{"score":0.5}`, nil)
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When the score is missing", func() {
			w, body := do(mux, http.MethodPost, "/job-worth/rank", `{}`, nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(body["error"], ShouldContainSubstring, "score")
		})
	})
}

func TestStatsAndRebuild(t *testing.T) {
	Convey("Given a service with evaluations", t, func() {
		mux, svc := newServiceMux()
		defer svc.Stop()
		for i, s := range []float64{0.5, 1.5, 4.5} {
			_, _ = do(mux, http.MethodPost, "/job-worth", fmt.Sprintf(`{"formData":{"i":%d},"score":%g}`, i, s),
				map[string]string{"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i)})
		}

		Convey("When requesting stats", func() {
			w, body := do(mux, http.MethodGet, "/stats", "", nil)

			Convey("Then both backends are reported", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				data, _ := body["data"].(map[string]any)
				store, _ := data["store"].(map[string]any)
				dist, _ := data["distribution"].(map[string]any)
				So(store["total"], ShouldEqual, 3)
				So(dist["totalCount"], ShouldEqual, 3)
			})
		})

		Convey("When rebuilding the histogram", func() {
			w, body := do(mux, http.MethodPost, "/admin/histogram/rebuild", "", nil)

			Convey("Then the report shows no drift", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				data, _ := body["data"].(map[string]any)
				So(data["total"], ShouldEqual, 3)
				So(data["drift"], ShouldEqual, 0)
			})
		})

		Convey("When the client accepts gzip", func() {
			req := httptest.NewRequest(http.MethodGet, "/stats", http.NoBody)
			req.Header.Set("Accept-Encoding", "gzip")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then a compressible body is compressed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				if w.Header().Get("Content-Encoding") == "gzip" {
					zr, err := gzip.NewReader(bytes.NewReader(w.Body.Bytes()))
					So(err, ShouldBeNil)
					raw, err := io.ReadAll(zr)
					So(err, ShouldBeNil)
					So(string(raw), ShouldContainSubstring, `"success":true`)
				} else {
					So(w.Body.String(), ShouldContainSubstring, `"success":true`)
				}
			})
		})
	})
}

func TestAdminRoutes(t *testing.T) {
	Convey("Given a server without admin routes", t, func() {
		mux := newMux(&stubDeps{})

		Convey("When calling the rebuild route", func() {
			w, _ := do(mux, http.MethodPost, "/admin/histogram/rebuild", "", nil)

			Convey("Then it is not served", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("Then public routes are still served", func() {
			w, _ := do(mux, http.MethodGet, "/stats", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestErrorMapping(t *testing.T) {
	Convey("Given dependencies that fail", t, func() {
		Convey("When a persistence error occurs", func() {
			mux := newMux(&stubDeps{err: fmt.Errorf("persist: %w", repository.ErrPersistence)})
			w, body := do(mux, http.MethodPost, "/job-worth", `{"formData":{"a":1},"score":1}`, nil)

			Convey("Then a generic 500 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(body["code"], ShouldEqual, "internal_error")
				So(body["error"], ShouldNotContainSubstring, "persist")
			})
		})

		Convey("When validation fails in the service", func() {
			mux := newMux(&stubDeps{err: fmt.Errorf("%w: score must be a valid number", service.ErrValidation)})
			w, body := do(mux, http.MethodPost, "/job-worth/rank", `{"score":1}`, nil)

			Convey("Then the message is passed through", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(body["error"], ShouldContainSubstring, "score must be a valid number")
			})
		})

		Convey("When the service has not started", func() {
			mux := newMux(&stubDeps{err: service.ErrNotStarted})
			w, body := do(mux, http.MethodPost, "/job-worth/rank", `{"score":1}`, nil)

			Convey("Then 503 not_ready is returned", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(body["code"], ShouldEqual, "not_ready")
			})
		})

		Convey("When stats fail", func() {
			mux := newMux(&stubDeps{err: errors.New("boom")}, api.WithAdminRoutes(true))
			w, _ := do(mux, http.MethodGet, "/stats", "", nil)
			So(w.Code, ShouldEqual, http.StatusInternalServerError)

			w, _ = do(mux, http.MethodPost, "/admin/histogram/rebuild", "", nil)
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestHealthEndpoint(t *testing.T) {
	Convey("Given the health endpoint", t, func() {
		ready := false
		mux := newMux(&stubDeps{}, api.WithReadiness(func() bool { return ready }))

		Convey("When the service is not ready", func() {
			w, _ := do(mux, http.MethodGet, "/healthz", "", nil)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When the service is ready", func() {
			ready = true
			w, _ := do(mux, http.MethodGet, "/healthz", "", nil)

			Convey("Then Prometheus metrics are exposed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "worthrank_")
			})
		})
	})
}

func TestClientKey(t *testing.T) {
	Convey("Given request headers", t, func() {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)

		Convey("Then the first forwarded address wins", func() {
			req.Header.Set("X-Forwarded-For", " 198.51.100.1 , 10.0.0.2")
			req.Header.Set("X-Real-IP", "192.0.2.9")
			So(api.ClientKey(req), ShouldEqual, "198.51.100.1")
		})

		Convey("Then X-Real-IP is the fallback", func() {
			req.Header.Set("X-Real-IP", "192.0.2.9")
			So(api.ClientKey(req), ShouldEqual, "192.0.2.9")
		})

		Convey("Then missing headers give unknown", func() {
			So(api.ClientKey(req), ShouldEqual, "unknown")
		})
	})
}

func TestErrorHelpers(t *testing.T) {
	Convey("Given the error helpers", t, func() {
		cause := errors.New("cause")

		So(errors.Is(api.NewKind("op", api.ErrNotFound), api.ErrNotFound), ShouldBeTrue)
		wrapped := api.WrapKind("op", api.ErrBadRequest, cause)
		So(errors.Is(wrapped, api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(wrapped, cause), ShouldBeTrue)
		So(wrapped.Error(), ShouldEqual, "op: bad request: cause")
		So(api.Wrap("op", nil), ShouldBeNil)
		So(errors.Is(api.Wrap("op", cause), cause), ShouldBeTrue)
	})
}
