package gcs

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func signingClient(t *testing.T) (*Client, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &Client{
		bucket: "gigmarket-docs",
		signer: &urlSigner{email: "uploader@proj.iam.gserviceaccount.com", key: key, now: func() time.Time { return fixedNow }},
	}, key
}

func verify(t *testing.T, key *rsa.PrivateKey, raw, canonical string) url.Values {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "storage.googleapis.com", u.Host)

	q := u.Query()
	sig, err := base64.StdEncoding.DecodeString(q.Get("Signature"))
	require.NoError(t, err)
	digest := sha256.Sum256([]byte(canonical))
	require.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig))
	return q
}

func TestSignedUploadURL(t *testing.T) {
	client, key := signingClient(t)
	object := "documents/7f1c/id card.png"

	raw, err := client.SignedURL("", object, "image/png", 15*time.Minute)
	require.NoError(t, err)

	expires := "1772367300" // fixedNow + 15m
	q := verify(t, key, raw, "PUT\n\nimage/png\n"+expires+"\n/gigmarket-docs/"+object)
	assert.Equal(t, expires, q.Get("Expires"))
	assert.Equal(t, "uploader@proj.iam.gserviceaccount.com", q.Get("GoogleAccessId"))
	assert.Contains(t, raw, "/gigmarket-docs/documents/7f1c/id%20card.png?")
}

func TestSignedReadURL(t *testing.T) {
	client, key := signingClient(t)

	raw, err := client.SignedReadURL("other-bucket", "documents/a.pdf", time.Hour)
	require.NoError(t, err)
	verify(t, key, raw, "GET\n\n\n1772370000\n/other-bucket/documents/a.pdf")
}

func TestSignedURLRejectsBadInput(t *testing.T) {
	client, _ := signingClient(t)

	cases := map[string]func() error{
		"no content type": func() error { _, err := client.SignedURL("", "o", "", time.Minute); return err },
		"no object":       func() error { _, err := client.SignedURL("", " ", "image/png", time.Minute); return err },
		"zero expiry":     func() error { _, err := client.SignedReadURL("", "o", 0); return err },
		"too long":        func() error { _, err := client.SignedReadURL("", "o", 8*24*time.Hour); return err },
		"no signer": func() error {
			_, err := (&Client{bucket: "b"}).SignedReadURL("", "o", time.Minute)
			return err
		},
		"no bucket": func() error {
			c := *client
			c.bucket = ""
			_, err := c.SignedReadURL("", "o", time.Minute)
			return err
		},
	}
	for name, call := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, call())
		})
	}
}

func apiClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Client{http: srv.Client(), host: srv.URL, bucket: "gigmarket-docs"}
}

func TestStatObject(t *testing.T) {
	client := apiClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "name,contentType,size", r.URL.Query().Get("fields"))
		if r.URL.Path != "/storage/v1/b/gigmarket-docs/o/documents/a.pdf" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"name":"documents/a.pdf","contentType":"application/pdf","size":"2048"}`))
	})

	info, err := client.StatObject(context.Background(), "", "documents/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, &ObjectInfo{Name: "documents/a.pdf", ContentType: "application/pdf", Size: 2048}, info)

	_, err = client.StatObject(context.Background(), "", "documents/missing.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestStatObjectServerError(t *testing.T) {
	client := apiClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend unavailable", http.StatusServiceUnavailable)
	})

	_, err := client.StatObject(context.Background(), "", "documents/a.pdf")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrObjectNotFound)
	assert.Contains(t, err.Error(), "backend unavailable")
}

func TestDeleteObject(t *testing.T) {
	statuses := map[string]int{
		"deleted": http.StatusNoContent,
		"missing": http.StatusNotFound,
		"denied":  http.StatusForbidden,
	}
	for name, status := range statuses {
		t.Run(name, func(t *testing.T) {
			client := apiClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				w.WriteHeader(status)
			})
			err := client.DeleteObject(context.Background(), "", "documents/a.pdf")
			if status == http.StatusForbidden {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPing(t *testing.T) {
	client := apiClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/storage/v1/b/gigmarket-docs/o", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("maxResults"))
		_, _ = w.Write([]byte(`{"items":[]}`))
	})
	require.NoError(t, client.Ping(context.Background()))

	assert.Error(t, (*Client)(nil).Ping(context.Background()))
}

func TestParsePrivateKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	parsed, err := parsePrivateKey(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}))
	require.NoError(t, err)
	assert.True(t, key.Equal(parsed))

	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	_, err = parsePrivateKey(pkcs1)
	require.NoError(t, err)

	_, err = parsePrivateKey([]byte("not pem"))
	assert.Error(t, err)
}
