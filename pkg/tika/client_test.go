package tika

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-chat-go/internal/config"
)

func TestExtractText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tika", r.URL.Path)
		assert.Equal(t, "text/plain", r.Header.Get("Accept"))
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		w.Write([]byte("extracted text from tika"))
	}))
	defer server.Close()

	client := NewClient(config.TikaConfig{ServerURL: server.URL})
	text, err := client.ExtractText(strings.NewReader("%PDF-1.4 fake"), "sample.pdf")

	require.NoError(t, err)
	assert.Equal(t, "extracted text from tika", text)
}

func TestExtractText_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unprocessable", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient(config.TikaConfig{ServerURL: server.URL})
	_, err := client.ExtractText(strings.NewReader("data"), "sample.pdf")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestExtractFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("file content extracted"))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	client := NewClient(config.TikaConfig{ServerURL: server.URL})
	text, err := client.ExtractFile(path)

	require.NoError(t, err)
	assert.Equal(t, "file content extracted", text)
}

func TestExtractFile_MissingFile(t *testing.T) {
	client := NewClient(config.TikaConfig{ServerURL: "http://127.0.0.1:0"})
	_, err := client.ExtractFile("/nonexistent/doc.pdf")
	assert.Error(t, err)
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", detectMimeType("a.pdf"))
	assert.Equal(t, "application/octet-stream", detectMimeType("noext"))
	assert.Equal(t, "application/octet-stream", detectMimeType("weird.zzz9"))
}
