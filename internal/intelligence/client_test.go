package intelligence

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientRenderHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/forms/chromium/convert/html", r.URL.Path)
		require.Contains(t, r.Header.Get("Content-Type"), "multipart/form-data")

		require.NoError(t, r.ParseMultipartForm(10<<20))
		file, _, err := r.FormFile("files")
		require.NoError(t, err)
		defer file.Close()
		html, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Contains(t, string(html), "Access Review")

		_, _ = w.Write([]byte("%PDF-FAKE"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL + "/")
	pdf, err := client.RenderHTML(context.Background(), "<html><body><h1>Access Review</h1></body></html>")
	require.NoError(t, err)
	require.Equal(t, "%PDF-FAKE", string(pdf))
}

func TestClientRenderHTMLRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("malformed html"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.RenderHTML(context.Background(), "<html>")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 422")
	require.Contains(t, err.Error(), "malformed html")
}

func TestClientPing(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	require.NoError(t, NewClient(healthy.URL).Ping(context.Background()))

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()
	require.Error(t, NewClient(broken.URL).Ping(context.Background()))
}
