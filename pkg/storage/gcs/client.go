// Package gcs talks to the Cloud Storage JSON API for the document flow:
// browsers upload and download through V2 signed URLs while the API only
// inspects and deletes objects.
package gcs

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

const (
	storageScope   = "https://www.googleapis.com/auth/devstorage.read_write"
	storageHost    = "https://storage.googleapis.com"
	requestTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	// V2 signed URLs are rejected by GCS past seven days.
	maxSignedExpiry = 7 * 24 * time.Hour
)

var ErrObjectNotFound = errors.New("gcs object not found")

// ObjectInfo is what the document service checks after a browser upload.
type ObjectInfo struct {
	Name        string
	ContentType string
	Size        int64
}

// Client is safe for concurrent use.
type Client struct {
	http   *http.Client
	host   string
	bucket string
	signer *urlSigner
}

type urlSigner struct {
	email string
	key   *rsa.PrivateKey
	now   func() time.Time
}

// NewClient authenticates with service account JSON when configured, else
// with application default credentials. Only service account credentials
// can sign URLs.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BucketName) == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	raw, err := credentialsJSON(gcp)
	if err != nil {
		return nil, err
	}
	// Token refreshes outlive the startup context.
	tokenCtx := context.WithoutCancel(ctx)

	var (
		ts     oauth2.TokenSource
		signer *urlSigner
	)
	if raw != nil {
		jwtCfg, err := google.JWTConfigFromJSON(raw, storageScope)
		if err != nil {
			return nil, fmt.Errorf("parse service account credentials: %w", err)
		}
		key, err := parsePrivateKey(jwtCfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		ts = jwtCfg.TokenSource(tokenCtx)
		signer = &urlSigner{email: jwtCfg.Email, key: key, now: time.Now}
	} else {
		ts, err = google.DefaultTokenSource(tokenCtx, storageScope)
		if err != nil {
			return nil, fmt.Errorf("default gcs credentials: %w", err)
		}
	}

	httpClient := oauth2.NewClient(tokenCtx, ts)
	httpClient.Timeout = requestTimeout
	client := &Client{http: httpClient, host: storageHost, bucket: cfg.BucketName, signer: signer}

	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"bucket":  cfg.BucketName,
			"signing": signer != nil,
		}), "gcs client initialized")
	}
	return client, nil
}

func credentialsJSON(gcp config.GCPConfig) ([]byte, error) {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []byte(gcp.CredentialsJSON), nil
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		raw, err := os.ReadFile(gcp.ApplicationCredentials)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		return raw, nil
	}
	return nil, nil
}

func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

func (c *Client) Close() error { return nil }

// Ping lists at most one object, proving both the token and bucket access.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.http == nil {
		return errors.New("gcs client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/storage/v1/b/"+url.PathEscape(c.bucket)+"/o", url.Values{"maxResults": {"1"}})
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return statusError("list objects", resp)
	}
	return nil
}

// SignedURL lets a browser PUT exactly contentType to object.
func (c *Client) SignedURL(bucket, object, contentType string, expires time.Duration) (string, error) {
	if strings.TrimSpace(contentType) == "" {
		return "", errors.New("content type is required")
	}
	return c.signedURL(http.MethodPut, bucket, object, contentType, expires)
}

func (c *Client) SignedReadURL(bucket, object string, expires time.Duration) (string, error) {
	return c.signedURL(http.MethodGet, bucket, object, "", expires)
}

func (c *Client) signedURL(method, bucket, object, contentType string, expires time.Duration) (string, error) {
	if c == nil || c.signer == nil {
		return "", errors.New("gcs signing requires service account credentials")
	}
	bucket, err := c.target(bucket, object)
	if err != nil {
		return "", err
	}
	if expires <= 0 || expires > maxSignedExpiry {
		return "", fmt.Errorf("signed url expiry must be within (0, %s]", maxSignedExpiry)
	}
	return c.signer.sign(method, bucket, object, contentType, expires)
}

// sign builds a V2 signature: METHOD, Content-MD5, Content-Type, Expires and
// the canonical resource, newline separated.
func (s *urlSigner) sign(method, bucket, object, contentType string, expires time.Duration) (string, error) {
	deadline := strconv.FormatInt(s.now().Add(expires).Unix(), 10)
	canonical := method + "\n\n" + contentType + "\n" + deadline + "\n/" + bucket + "/" + object
	digest := sha256.Sum256([]byte(canonical))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign url: %w", err)
	}

	q := url.Values{
		"GoogleAccessId": {s.email},
		"Expires":        {deadline},
		"Signature":      {base64.StdEncoding.EncodeToString(sig)},
	}
	return storageHost + "/" + url.PathEscape(bucket) + "/" + escapePath(object) + "?" + q.Encode(), nil
}

// StatObject returns ErrObjectNotFound until the browser upload lands.
func (c *Client) StatObject(ctx context.Context, bucket, object string) (*ObjectInfo, error) {
	bucket, err := c.target(bucket, object)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodGet, objectPath(bucket, object), url.Values{"fields": {"name,contentType,size"}})
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrObjectNotFound
	default:
		return nil, statusError("stat object", resp)
	}

	var meta struct {
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
		Size        int64  `json:"size,string"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode object metadata: %w", err)
	}
	return &ObjectInfo{Name: meta.Name, ContentType: meta.ContentType, Size: meta.Size}, nil
}

// DeleteObject treats an already missing object as deleted.
func (c *Client) DeleteObject(ctx context.Context, bucket, object string) error {
	bucket, err := c.target(bucket, object)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodDelete, objectPath(bucket, object), nil)
	if err != nil {
		return err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	}
	return statusError("delete object", resp)
}

func (c *Client) target(bucket, object string) (string, error) {
	if bucket == "" && c != nil {
		bucket = c.bucket
	}
	if bucket == "" {
		return "", errors.New("bucket is required")
	}
	if strings.TrimSpace(object) == "" {
		return "", errors.New("object is required")
	}
	return bucket, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values) (*http.Response, error) {
	if c == nil || c.http == nil {
		return nil, errors.New("gcs client not initialized")
	}
	u := c.host + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return c.http.Do(req)
}

func objectPath(bucket, object string) string {
	return "/storage/v1/b/" + url.PathEscape(bucket) + "/o/" + url.PathEscape(object)
}

// escapePath keeps the slashes of an object name.
func escapePath(object string) string {
	parts := strings.Split(object, "/")
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return strings.Join(parts, "/")
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return fmt.Errorf("gcs %s: %s: %s", op, resp.Status, msg)
	}
	return fmt.Errorf("gcs %s: %s", op, resp.Status)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

func parsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("service account private key is not PEM")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, errors.New("service account private key is not RSA")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.New("unsupported private key format")
	}
	return key, nil
}
