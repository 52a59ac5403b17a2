package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"polegrid/internal/model"
	"polegrid/internal/service"
	serviceMocks "polegrid/internal/service/mocks"
	"polegrid/internal/storage"
	storeMocks "polegrid/internal/storage/mocks"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

type multipartFile struct {
	field, name string
	content     []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...multipartFile) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestRoot(t *testing.T) {
	app := newApp()
	app.Get("/", Root())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, LivenessMessage, string(b))
}

func TestHealthCheck(t *testing.T) {
	mockSvc := new(serviceMocks.MockRegistrationService)
	app := newApp()
	app.Get("/health", HealthCheck(mockSvc))

	t.Run("healthy", func(t *testing.T) {
		mockSvc.On("Ping", mock.Anything).Return(nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode[map[string]string](t, resp)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		mockSvc.On("Ping", mock.Anything).Return(errors.New("store error")).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		body := decode[errorPayload](t, resp)
		assert.False(t, body.Success)
		assert.Equal(t, "SERVICE_UNAVAILABLE", body.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := newApp()
	app.Get("/healthz", LivenessProbe())

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListRecords(t *testing.T) {
	mockSvc := new(serviceMocks.MockRegistrationService)
	app := newApp()
	app.Get("/api/landlords", ListRecords(mockSvc, model.EntityLandlord))

	t.Run("success", func(t *testing.T) {
		items := []model.Record{{ID: "l1", CreatedAt: time.Now().UTC(), Fields: map[string]any{"fullName": "Bob"}}}
		mockSvc.On("List", mock.Anything, model.EntityLandlord).Return(items, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/api/landlords", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode[listResponse](t, resp)
		assert.True(t, body.Success)
		require.Len(t, body.Data, 1)
		assert.Equal(t, "l1", body.Data[0].ID)
		assert.Equal(t, "Bob", body.Data[0].Fields["fullName"])
		mockSvc.AssertExpectations(t)
	})

	t.Run("empty list is an array", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, model.EntityLandlord).Return([]model.Record{}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/api/landlords", nil))

		b, _ := io.ReadAll(resp.Body)
		assert.JSONEq(t, `{"success":true,"data":[]}`, string(b))
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, model.EntityLandlord).Return(nil, errors.New("read /var/lib/db.json: permission denied")).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/api/landlords", nil))

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		b, _ := io.ReadAll(resp.Body)
		assert.NotContains(t, string(b), "/var/lib")
		assert.Contains(t, string(b), "INTERNAL_ERROR")
	})
}

func TestRegister_Contact(t *testing.T) {
	mockSvc := new(serviceMocks.MockRegistrationService)
	app := newApp()
	app.Post("/api/contact/create", Register(mockSvc, model.EntityContact))

	t.Run("json success", func(t *testing.T) {
		rec := &model.Record{ID: "c1", CreatedAt: time.Now().UTC(), Fields: map[string]any{"name": "Ada"}}
		mockSvc.On("Register", mock.Anything, model.EntityContact, mock.MatchedBy(func(sub service.Submission) bool {
			return sub.Fields["name"] == "Ada" && sub.Fields["email"] == "ada@example.com"
		})).Return(rec, nil).Once()
		mockSvc.On("Message", model.EntityContact).Return("Contact message saved!").Once()

		req := httptest.NewRequest(http.MethodPost, "/api/contact/create",
			strings.NewReader(`{"name":"Ada","email":"ada@example.com","message":"hello"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode[recordResponse](t, resp)
		assert.True(t, body.Success)
		assert.Equal(t, "Contact message saved!", body.Message)
		assert.Equal(t, "c1", body.Data.ID)
		mockSvc.AssertExpectations(t)
	})

	t.Run("validation error", func(t *testing.T) {
		mockSvc.On("Register", mock.Anything, model.EntityContact, mock.Anything).
			Return(nil, &service.ValidationError{Missing: []string{"email", "message"}}).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/contact/create", strings.NewReader(`{"name":"Ada"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[errorPayload](t, resp)
		assert.False(t, body.Success)
		assert.Equal(t, "VALIDATION_FAILED", body.Code)
		assert.Equal(t, "Missing required fields: email, message", body.Message)
		assert.Equal(t, []string{"email", "message"}, body.Missing)
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/contact/create", strings.NewReader(`{"name":`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[errorPayload](t, resp)
		assert.Equal(t, "INVALID_BODY", body.Code)
	})

	t.Run("trailing data is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/contact/create", strings.NewReader(`{"name":"Ada"} {"name":"Bob"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("json array is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/contact/create", strings.NewReader(`["a"]`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("Register", mock.Anything, model.EntityContact, mock.Anything).
			Return(nil, errors.New("save record: disk full")).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/contact/create", strings.NewReader(`{"name":"Ada"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		body := decode[errorPayload](t, resp)
		assert.Equal(t, "Internal server error", body.Message)
	})
}

func TestRegister_FormEncodings(t *testing.T) {
	mockSvc := new(serviceMocks.MockRegistrationService)
	app := newApp()
	app.Post("/api/organization/register", Register(mockSvc, model.EntityOrganization))
	app.Post("/api/landlord/register", Register(mockSvc, model.EntityLandlord))

	t.Run("url-encoded with repeated keys", func(t *testing.T) {
		var got service.Submission
		mockSvc.On("Register", mock.Anything, model.EntityOrganization, mock.Anything).
			Run(func(args mock.Arguments) { got = args.Get(2).(service.Submission) }).
			Return(&model.Record{ID: "o1"}, nil).Once()
		mockSvc.On("Message", model.EntityOrganization).Return("Organization registered and saved to DB!").Once()

		form := url.Values{}
		form.Set("organizationName", "Acme")
		form.Add("services[]", "poles")
		form.Add("services[]", "wires")
		req := httptest.NewRequest(http.MethodPost, "/api/organization/register", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Acme", got.Fields["organizationName"])
		assert.Equal(t, []string{"poles", "wires"}, got.Fields["services"])
		assert.Empty(t, got.Files)
	})

	t.Run("multipart with files", func(t *testing.T) {
		var got service.Submission
		var photo []byte
		mockSvc.On("Register", mock.Anything, model.EntityLandlord, mock.Anything).
			Run(func(args mock.Arguments) {
				got = args.Get(2).(service.Submission)
				// Readers are only valid while the handler runs.
				photo, _ = io.ReadAll(got.Files["idPhoto"][0].Reader)
			}).
			Return(&model.Record{ID: "l1"}, nil).Once()
		mockSvc.On("Message", model.EntityLandlord).Return("Landlord registered and saved to DB!").Once()

		body, ct := multipartBody(t,
			map[string]string{"fullName": "Bob", "phone": "555"},
			multipartFile{"idPhoto", "me.jpg", []byte("jpeg-bytes")},
			multipartFile{"supportingDocs[]", "a.pdf", []byte("a")},
			multipartFile{"supportingDocs[]", "b.pdf", []byte("b")},
		)
		req := httptest.NewRequest(http.MethodPost, "/api/landlord/register", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Bob", got.Fields["fullName"])
		require.Len(t, got.Files["idPhoto"], 1)
		assert.Equal(t, "me.jpg", got.Files["idPhoto"][0].Filename)
		assert.Equal(t, []byte("jpeg-bytes"), photo)
		assert.Len(t, got.Files["supportingDocs"], 2)
	})

	t.Run("too many files", func(t *testing.T) {
		mockSvc.On("Register", mock.Anything, model.EntityLandlord, mock.Anything).
			Return(nil, &service.TooManyFilesError{Field: "idPhoto", Max: 1}).Once()

		body, ct := multipartBody(t, nil,
			multipartFile{"idPhoto", "a.jpg", []byte("a")},
			multipartFile{"idPhoto", "b.jpg", []byte("b")},
		)
		req := httptest.NewRequest(http.MethodPost, "/api/landlord/register", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		res := decode[errorPayload](t, resp)
		assert.Equal(t, "TOO_MANY_FILES", res.Code)
	})
}

func TestUploadFile(t *testing.T) {
	mockSvc := new(serviceMocks.MockRegistrationService)
	app := newApp()
	app.Post("/api/upload", UploadFile(mockSvc))

	t.Run("success", func(t *testing.T) {
		body, ct := multipartBody(t, nil, multipartFile{"file", "test.txt", []byte("hello world")})

		mockSvc.On("Upload", mock.Anything, mock.MatchedBy(func(f service.File) bool {
			return f.Filename == "test.txt" && f.Size == 11
		})).Return(&service.StoredFile{Filename: "1-2.txt", Path: "/uploads/1-2.txt", Size: 11}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		res := decode[uploadResponse](t, resp)
		assert.True(t, res.Success)
		assert.Equal(t, "File uploaded successfully!", res.Message)
		assert.Equal(t, "/uploads/1-2.txt", res.FilePath)
		mockSvc.AssertExpectations(t)
	})

	t.Run("no file", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/api/upload", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		res := decode[errorPayload](t, resp)
		assert.Equal(t, "FILE_REQUIRED", res.Code)
		assert.Equal(t, "No file uploaded", res.Message)
	})

	t.Run("service error", func(t *testing.T) {
		body, ct := multipartBody(t, nil, multipartFile{"file", "test.txt", []byte("hello")})
		mockSvc.On("Upload", mock.Anything, mock.Anything).Return(nil, errors.New("upload failed")).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestServeUpload(t *testing.T) {
	mockFiles := new(storeMocks.MockStorage)
	app := newApp()
	app.Get("/uploads/:filename", ServeUpload(mockFiles))

	t.Run("found", func(t *testing.T) {
		mockFiles.On("Get", mock.Anything, "1-2.txt").
			Return(io.NopCloser(strings.NewReader("hello")), storage.ObjectInfo{Key: "1-2.txt", Size: 5, ContentType: "text/plain"}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/uploads/1-2.txt", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
		b, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "hello", string(b))
	})

	t.Run("missing", func(t *testing.T) {
		mockFiles.On("Get", mock.Anything, "nope.txt").
			Return(nil, storage.ObjectInfo{}, storage.ErrObjectNotFound).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/uploads/nope.txt", nil))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		res := decode[errorPayload](t, resp)
		assert.Equal(t, "NOT_FOUND", res.Code)
	})
}

func TestRouting(t *testing.T) {
	app := newApp()
	mockSvc := new(serviceMocks.MockRegistrationService)
	RegisterRoutes(app, mockSvc, new(storeMocks.MockStorage), prometheus.NewRegistry())

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/nonexistent"},
		{http.MethodPost, "/api/landlords"},
		{http.MethodDelete, "/api/contact"},
		{http.MethodGet, "/uploads"},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			resp, _ := app.Test(httptest.NewRequest(tc.method, tc.path, nil))

			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
			res := decode[errorPayload](t, resp)
			assert.False(t, res.Success)
			assert.Equal(t, "Route not found", res.Message)
		})
	}

	t.Run("metrics exposed", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestErrorHandler(t *testing.T) {
	app := newApp()
	app.Get("/bad", func(c *fiber.Ctx) error { return fiber.ErrBadRequest })
	app.Get("/large", func(c *fiber.Ctx) error { return fiber.ErrRequestEntityTooLarge })
	app.Get("/teapot", func(c *fiber.Ctx) error { return fiber.ErrTeapot })

	cases := map[string]struct {
		status int
		code   string
	}{
		"/bad":    {http.StatusBadRequest, "BAD_REQUEST"},
		"/large":  {http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"},
		"/teapot": {http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for path, want := range cases {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want.status, resp.StatusCode, path)
		assert.Equal(t, want.code, decode[errorPayload](t, resp).Code, path)
	}
}
