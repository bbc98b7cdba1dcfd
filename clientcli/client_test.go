package clientcli_test

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/burndrop/clientcli"
)

const testID = "Xk3tQ9bZ2mLpR7vW1nC8sA"

func newClient(t *testing.T, server *httptest.Server) *clientcli.Client {
	t.Helper()
	client, err := clientcli.New(&clientcli.Config{Endpoint: server.URL + "/"})
	require.NoError(t, err)
	return client
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNew(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		client, err := clientcli.New(&clientcli.Config{Endpoint: "http://localhost:5708"})
		require.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("empty endpoint uses default", func(t *testing.T) {
		client, err := clientcli.New(&clientcli.Config{})
		require.NoError(t, err)
		assert.Equal(t, clientcli.DefaultEndpoint+"/api/shares/abc/download", client.ShareURL("abc"))
	})

	t.Run("trailing slash removed", func(t *testing.T) {
		client, err := clientcli.New(&clientcli.Config{Endpoint: "https://drop.example.com/"})
		require.NoError(t, err)
		assert.Equal(t, "https://drop.example.com/api/shares/abc/download", client.ShareURL("abc"))
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := clientcli.New(nil)
		assert.ErrorIs(t, err, clientcli.ErrConfigRequired)
	})

	t.Run("invalid endpoint", func(t *testing.T) {
		_, err := clientcli.New(&clientcli.Config{Endpoint: "ftp://example.com"})
		assert.ErrorIs(t, err, clientcli.ErrInvalidEndpoint)
	})
}

func TestClient_Upload(t *testing.T) {
	t.Run("successful upload", func(t *testing.T) {
		expires := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/shares", r.URL.Path)

			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "2h0m0s", r.FormValue("ttl"))
			assert.Equal(t, "hunter2", r.FormValue("password"))
			assert.Equal(t, "3", r.FormValue("max_downloads"))

			file, header, err := r.FormFile("file")
			require.NoError(t, err)
			defer func() { _ = file.Close() }()
			assert.Equal(t, "notes.txt", header.Filename)
			body, err := io.ReadAll(file)
			require.NoError(t, err)
			assert.Equal(t, "test content", string(body))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"` + testID + `","name":"notes.txt","size_bytes":12,` +
				`"content_type":"text/plain; charset=utf-8","expires_at":"2026-01-02T03:04:05Z",` +
				`"has_password":true,"max_downloads":3}`))
		}))
		defer server.Close()

		localPath := writeTemp(t, "notes.txt", "test content")

		result, err := newClient(t, server).Upload(context.Background(), clientcli.UploadOptions{
			LocalPath:    localPath,
			TTL:          2 * time.Hour,
			Password:     "hunter2",
			MaxDownloads: 3,
		})
		require.NoError(t, err)

		assert.Equal(t, localPath, result.LocalPath)
		assert.Equal(t, testID, result.ID)
		assert.Equal(t, server.URL+"/api/shares/"+testID+"/download", result.URL)
		assert.Equal(t, int64(12), result.Size)
		assert.True(t, result.ExpiresAt.Equal(expires))
		assert.True(t, result.HasPassword)
		require.NotNil(t, result.MaxDownloads)
		assert.Equal(t, 3, *result.MaxDownloads)
	})

	t.Run("optional fields omitted", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			_, hasTTL := r.MultipartForm.Value["ttl"]
			_, hasPassword := r.MultipartForm.Value["password"]
			_, hasMax := r.MultipartForm.Value["max_downloads"]
			assert.False(t, hasTTL)
			assert.False(t, hasPassword)
			assert.False(t, hasMax)

			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"` + testID + `","name":"a.bin","size_bytes":1}`))
		}))
		defer server.Close()

		result, err := newClient(t, server).Upload(context.Background(), clientcli.UploadOptions{
			LocalPath: writeTemp(t, "a.bin", "x"),
		})
		require.NoError(t, err)
		assert.Nil(t, result.MaxDownloads)
	})

	t.Run("server rejects", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			_, _ = w.Write([]byte(`{"error":"too_large","message":"File exceeds the upload limit"}`))
		}))
		defer server.Close()

		_, err := newClient(t, server).Upload(context.Background(), clientcli.UploadOptions{
			LocalPath: writeTemp(t, "big.bin", "too big"),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, clientcli.ErrTooLarge)

		var apiErr *clientcli.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "too_large", apiErr.Code)
		assert.Equal(t, "File exceeds the upload limit", apiErr.Message)
	})

	t.Run("missing local file", func(t *testing.T) {
		client, err := clientcli.New(&clientcli.Config{})
		require.NoError(t, err)

		_, err = client.Upload(context.Background(), clientcli.UploadOptions{
			LocalPath: filepath.Join(t.TempDir(), "missing.txt"),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("empty path", func(t *testing.T) {
		client, err := clientcli.New(&clientcli.Config{})
		require.NoError(t, err)

		_, err = client.Upload(context.Background(), clientcli.UploadOptions{})
		assert.ErrorIs(t, err, clientcli.ErrEmptyPath)
	})

	t.Run("directory", func(t *testing.T) {
		client, err := clientcli.New(&clientcli.Config{})
		require.NoError(t, err)

		_, err = client.Upload(context.Background(), clientcli.UploadOptions{LocalPath: t.TempDir()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is a directory")
	})
}

func TestClient_Info(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/shares/"+testID, r.URL.Path)

		if r.Header.Get(clientcli.PasswordHeader) != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"password_required","message":"This share requires a password"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"` + testID + `","name":"notes.txt","size_bytes":12,"has_password":true,"current_downloads":1}`))
	}))
	defer server.Close()

	client := newClient(t, server)

	_, err := client.Info(context.Background(), testID, "")
	assert.ErrorIs(t, err, clientcli.ErrPasswordRequired)
	assert.NotErrorIs(t, err, clientcli.ErrPasswordInvalid)

	info, err := client.Info(context.Background(), testID, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", info.Name)
	assert.Equal(t, 1, info.CurrentDownloads)
	assert.Nil(t, info.MaxDownloads)

	_, err = client.Info(context.Background(), "", "")
	assert.ErrorIs(t, err, clientcli.ErrEmptyID)
}

func TestClient_Download(t *testing.T) {
	content := "file content"

	newServer := func(t *testing.T) *httptest.Server {
		t.Helper()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/shares/"+testID+"/download", r.URL.Path)
			w.Header().Set("Content-Type", "text/plain")
			w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": "report.txt"}))
			w.Header().Set(clientcli.RemainingHeader, "2")
			_, _ = w.Write([]byte(content))
		}))
		t.Cleanup(server.Close)
		return server
	}

	t.Run("named from server", func(t *testing.T) {
		t.Chdir(t.TempDir())

		result, reader, err := newClient(t, newServer(t)).Download(context.Background(), clientcli.DownloadOptions{ID: testID})
		require.NoError(t, err)
		assert.Nil(t, reader)

		assert.Equal(t, "report.txt", result.LocalPath)
		assert.Equal(t, "report.txt", result.Name)
		assert.Equal(t, int64(len(content)), result.Size)
		require.NotNil(t, result.Remaining)
		assert.Equal(t, 2, *result.Remaining)

		data, err := os.ReadFile("report.txt")
		require.NoError(t, err)
		assert.Equal(t, content, string(data))
	})

	t.Run("into directory", func(t *testing.T) {
		dir := t.TempDir()

		result, _, err := newClient(t, newServer(t)).Download(context.Background(), clientcli.DownloadOptions{ID: testID, LocalPath: dir})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "report.txt"), result.LocalPath)
	})

	t.Run("explicit path creates parents", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "out.txt")

		_, _, err := newClient(t, newServer(t)).Download(context.Background(), clientcli.DownloadOptions{ID: testID, LocalPath: path})
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, content, string(data))
	})

	t.Run("stdout", func(t *testing.T) {
		result, reader, err := newClient(t, newServer(t)).Download(context.Background(), clientcli.DownloadOptions{ID: testID, LocalPath: "-"})
		require.NoError(t, err)
		require.NotNil(t, reader)
		defer func() { _ = reader.Close() }()

		data, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, content, string(data))
		assert.Equal(t, "-", result.LocalPath)
	})

	t.Run("password sent as header", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(clientcli.PasswordHeader) != "hunter2" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"password_invalid","message":"Incorrect password"}`))
				return
			}
			_, _ = w.Write([]byte(content))
		}))
		defer server.Close()

		client := newClient(t, server)

		_, _, err := client.Download(context.Background(), clientcli.DownloadOptions{ID: testID, Password: "wrong", LocalPath: "-"})
		assert.ErrorIs(t, err, clientcli.ErrPasswordInvalid)

		result, reader, err := client.Download(context.Background(), clientcli.DownloadOptions{ID: testID, Password: "hunter2", LocalPath: "-"})
		require.NoError(t, err)
		_ = reader.Close()
		// no Content-Disposition falls back to the id
		assert.Equal(t, testID, result.Name)
		assert.Nil(t, result.Remaining)
	})

	t.Run("not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not_found","message":"Share not found"}`))
		}))
		defer server.Close()

		_, _, err := newClient(t, server).Download(context.Background(), clientcli.DownloadOptions{ID: testID, LocalPath: "-"})
		assert.ErrorIs(t, err, clientcli.ErrNotFound)
	})
}

func TestClient_Download_HostileFilename(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="../../etc/passwd"`)
		_, _ = w.Write([]byte("x"))
	}))
	defer server.Close()

	dir := t.TempDir()
	result, _, err := newClient(t, server).Download(context.Background(), clientcli.DownloadOptions{ID: testID, LocalPath: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "passwd"), result.LocalPath)
}

func TestClient_Stats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/stats", r.URL.Path)
		_, _ = w.Write([]byte(`{"active_shares":4,"total_downloads":10,"shares_today":2,"avg_size_bytes":512.5,"stored_bytes":2050}`))
	}))
	defer server.Close()

	stats, err := newClient(t, server).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.ActiveShares)
	assert.Equal(t, int64(10), stats.TotalDownloads)
	assert.InDelta(t, 512.5, stats.AvgSizeBytes, 0.001)
}

func TestClient_Ping(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"unavailable","message":"Storage is unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := newClient(t, server)
	require.NoError(t, client.Ping(context.Background()))

	healthy = false
	err := client.Ping(context.Background())
	var apiErr *clientcli.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestAPIError(t *testing.T) {
	t.Run("plain text body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := newClient(t, server).Stats(context.Background())
		require.Error(t, err)
		assert.Equal(t, "server error: 502 - bad gateway", err.Error())
	})

	t.Run("code match", func(t *testing.T) {
		err := &clientcli.APIError{StatusCode: http.StatusUnauthorized, Code: "password_required"}
		assert.ErrorIs(t, err, clientcli.ErrPasswordRequired)
		assert.NotErrorIs(t, err, clientcli.ErrPasswordInvalid)
		assert.NotErrorIs(t, err, clientcli.ErrNotFound)
		assert.False(t, errors.Is(err, errors.New("other")))
	})

	t.Run("status match", func(t *testing.T) {
		err := &clientcli.APIError{StatusCode: http.StatusTooManyRequests, Code: "too_many_attempts"}
		assert.ErrorIs(t, err, clientcli.ErrTooManyAttempts)
		assert.Equal(t, "server error: 429 too_many_attempts", err.Error())
	})
}
