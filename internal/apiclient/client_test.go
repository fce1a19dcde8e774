package apiclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/campus/portal/internal/apiclient"
	"github.com/campus/portal/internal/infrastructure/credential"
	"github.com/campus/portal/internal/infrastructure/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, creds credential.Store, opts ...apiclient.Option) *apiclient.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := apiclient.New(apiclient.Config{BaseURL: server.URL + "/api", Timeout: 5 * time.Second}, creds, opts...)
	require.NoError(t, err)
	return client
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestNew(t *testing.T) {
	client, err := apiclient.New(apiclient.Config{BaseURL: "http://localhost:8000/api/"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/api", client.BaseURL())

	_, err = apiclient.New(apiclient.Config{}, nil)
	assert.Error(t, err)

	_, err = apiclient.New(apiclient.Config{BaseURL: "localhost"}, nil)
	assert.Error(t, err)
}

func TestDo_BasePathAndHeaders(t *testing.T) {
	creds := credential.NewMemoryStore(credential.Pair{Access: "tok-123", Refresh: "ref"})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tutor/courses/", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "portal-client/1.0", r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get(apiclient.RequestIDHeader))
		assert.Empty(t, r.Header.Get("Content-Type"), "no body means no content type")
		jsonHandler(http.StatusOK, `{"results":[]}`)(w, r)
	}, creds)

	resp, err := client.Get(context.Background(), "/tutor/courses/", url.Values{"page": {"2"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.RequestID)
}

func TestDo_NoTokenNoAuthorization(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		jsonHandler(http.StatusOK, `{}`)(w, r)
	}, credential.NewMemoryStore())

	_, err := client.Get(context.Background(), "/auth/user/", nil)
	require.NoError(t, err)
}

func TestDo_JSONBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"Algebra II"}`, string(body))
		jsonHandler(http.StatusOK, `{"id":1,"name":"Algebra II"}`)(w, r)
	}, nil)

	var out map[string]interface{}
	err := client.DoJSON(context.Background(), apiclient.Request{
		Method: http.MethodPatch,
		Path:   "/tutor/courses/1/",
		Body:   map[string]string{"name": "Algebra II"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Algebra II", out["name"])
}

func TestDo_MultipartDetection(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
		want map[string]string
		file string
	}{
		{
			name: "map containing a file",
			body: map[string]interface{}{
				"title":      "Essay",
				"assignment": 7,
				"upload":     apiclient.NewFile("essay.txt", []byte("hello world")),
			},
			want: map[string]string{"title": "Essay", "assignment": "7"},
			file: "upload",
		},
		{
			name: "bare file",
			body: apiclient.NewFile("photo.png", []byte("hello world")),
			file: "file",
		},
		{
			name: "explicit form",
			body: &apiclient.Form{
				Fields: map[string]string{"caption": "Reunion"},
				Files:  map[string]*apiclient.File{"image": apiclient.NewFile("r.jpg", []byte("hello world"))},
			},
			want: map[string]string{"caption": "Reunion"},
			file: "image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data; boundary="))
				if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
					return
				}

				for k, v := range tt.want {
					assert.Equal(t, v, r.FormValue(k))
				}
				f, _, err := r.FormFile(tt.file)
				if !assert.NoError(t, err) {
					return
				}
				defer f.Close()
				data, _ := io.ReadAll(f)
				assert.Equal(t, "hello world", string(data))

				jsonHandler(http.StatusCreated, `{"id":9}`)(w, r)
			}, nil)

			resp, err := client.Post(context.Background(), "/student/submissions/", tt.body)
			require.NoError(t, err)
			assert.Equal(t, http.StatusCreated, resp.StatusCode)
		})
	}
}

func TestDo_MapWithoutFileIsJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		jsonHandler(http.StatusCreated, `{"id":1}`)(w, r)
	}, nil)

	_, err := client.Post(context.Background(), "/admin/news/", map[string]interface{}{"title": "x"})
	require.NoError(t, err)
}

func TestDo_HTMLResponse(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "declared html",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				_, _ = io.WriteString(w, "<html><body>login</body></html>")
			},
		},
		{
			name: "sniffed html",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				_, _ = io.WriteString(w, "<!DOCTYPE html><html><body>oops</body></html>")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler, nil)
			resp, err := client.Get(context.Background(), "/admin/news/", nil)
			assert.Nil(t, resp)
			require.Error(t, err)
			assert.True(t, apiclient.IsKind(err, apiclient.KindUnexpectedContentType))
		})
	}
}

func TestDo_Unauthorized_ClearsCredentials(t *testing.T) {
	creds := credential.NewMemoryStore(credential.Pair{Access: "expired", Refresh: "refresh"})
	metrics := telemetry.NewClientMetrics(telemetry.MetricsConfig{})
	client := newTestClient(t, jsonHandler(http.StatusUnauthorized, `{"detail":"Token is invalid or expired"}`), creds, apiclient.WithMetrics(metrics))

	_, err := client.Get(context.Background(), "/tutor/students/", nil)
	require.Error(t, err)
	assert.True(t, apiclient.IsKind(err, apiclient.KindUnauthenticated))
	assert.Equal(t, apiclient.GenericMessage(apiclient.KindUnauthenticated), apiclient.MessageOf(err))

	pair, err := creds.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pair.Access)
	assert.Empty(t, pair.Refresh)

	count, err := testutil.GatherAndCount(metrics.Registry(), "portal_client_credential_clears_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDo_StatusKinds(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantKind    apiclient.Kind
		wantMessage string
	}{
		{"forbidden", http.StatusForbidden, `{"detail":"Not allowed"}`, apiclient.KindForbidden, "Not allowed"},
		{"not found empty body", http.StatusNotFound, ``, apiclient.KindNotFound, apiclient.GenericMessage(apiclient.KindNotFound)},
		{"server error", http.StatusInternalServerError, `{"error":{"code":"INTERNAL","message":"database down"}}`, apiclient.KindServerError, "database down"},
		{"bad gateway", http.StatusBadGateway, `not json`, apiclient.KindServerError, apiclient.GenericMessage(apiclient.KindServerError)},
		{"field error", http.StatusUnprocessableEntity, `{"field_name":["is required"]}`, apiclient.KindValidation, "is required"},
		{"bad request message", http.StatusBadRequest, `{"message":"bad input","detail":"ignored"}`, apiclient.KindValidation, "bad input"},
		{"conflict", http.StatusConflict, `{"non_field_errors":["already enrolled"]}`, apiclient.KindValidation, "already enrolled"},
		{"redirect", http.StatusNotModified, ``, apiclient.KindRequestFailed, apiclient.GenericMessage(apiclient.KindRequestFailed)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := credential.NewMemoryStore(credential.Pair{Access: "keep"})
			client := newTestClient(t, jsonHandler(tt.status, tt.body), creds)

			_, err := client.Post(context.Background(), "/tutor/courses/", map[string]string{"name": ""})
			require.Error(t, err)

			var apiErr *apiclient.Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.wantKind, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			assert.Equal(t, "POST /tutor/courses/", apiErr.Op)

			pair, _ := creds.Get(context.Background())
			assert.Equal(t, "keep", pair.Access, "only 401 clears credentials")
		})
	}
}

func TestDo_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client, err := apiclient.New(apiclient.Config{BaseURL: baseURL, Timeout: time.Second}, nil)
	require.NoError(t, err)

	_, err = client.Get(context.Background(), "/admin/events/", nil)
	require.Error(t, err)
	assert.True(t, apiclient.IsKind(err, apiclient.KindNetworkUnreachable))
	assert.Equal(t, apiclient.GenericMessage(apiclient.KindNetworkUnreachable), apiclient.MessageOf(err))
}

func TestDo_ContextCancelled(t *testing.T) {
	client := newTestClient(t, jsonHandler(http.StatusOK, `[]`), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Get(ctx, "/admin/events/", nil)
	require.Error(t, err)
	assert.True(t, apiclient.IsKind(err, apiclient.KindNetworkUnreachable))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_RateLimit(t *testing.T) {
	server := httptest.NewServer(jsonHandler(http.StatusOK, `[]`))
	defer server.Close()

	client, err := apiclient.New(apiclient.Config{BaseURL: server.URL, RateLimit: 0.001, RateBurst: 1}, nil)
	require.NoError(t, err)

	_, err = client.Get(context.Background(), "/admin/news/", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Get(ctx, "/admin/news/", nil)
	require.Error(t, err)
	assert.True(t, apiclient.IsKind(err, apiclient.KindNetworkUnreachable))
}

func TestDo_MetricsAndSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})

	metrics := telemetry.NewClientMetrics(telemetry.MetricsConfig{})
	var status atomic.Int32
	status.Store(http.StatusOK)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		jsonHandler(int(status.Load()), `{}`)(w, r)
	}, nil, apiclient.WithMetrics(metrics))

	_, err := client.Get(context.Background(), "/admin/news/", nil)
	require.NoError(t, err)
	status.Store(http.StatusForbidden)
	_, err = client.Get(context.Background(), "/admin/news/", nil)
	require.Error(t, err)

	count, err := testutil.GatherAndCount(metrics.Registry(), "portal_client_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per outcome kind")

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "apiclient.request", spans[0].Name())
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())
	assert.Contains(t, spans[1].Attributes(), attribute.String(telemetry.SpanAttrErrorKind, string(apiclient.KindForbidden)))
	assert.Contains(t, spans[1].Attributes(), attribute.Int(telemetry.SpanAttrStatus, http.StatusForbidden))
}

func TestSetHeader(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "en", r.Header.Get("Accept-Language"))
		assert.Equal(t, "override", r.Header.Get("X-Trace"))
		jsonHandler(http.StatusOK, `{}`)(w, r)
	}, nil)
	client.SetHeader("Accept-Language", "en")
	client.SetHeader("X-Trace", "default")

	_, err := client.Do(context.Background(), apiclient.Request{
		Path:    "/auth/user/",
		Headers: map[string]string{"X-Trace": "override"},
	})
	require.NoError(t, err)
}
