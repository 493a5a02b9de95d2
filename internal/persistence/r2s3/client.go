// Package r2s3 ships closed block log files to an S3-compatible bucket
// (Cloudflare R2, MinIO, S3) using SigV4 request signing.
package r2s3

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

const (
	algorithm = "AWS4-HMAC-SHA256"
	service   = "s3"
)

// Credentials identify the bucket and the key pair used to sign requests.
type Credentials struct {
	Endpoint  string
	Bucket    string
	Region    string // "auto" for R2
	AccessKey string
	SecretKey string
}

type Client struct {
	base   *url.URL
	bucket string
	sign   signer
	http   *http.Client
	now    func() time.Time
}

func New(c Credentials) (*Client, error) {
	endpoint := strings.TrimSpace(c.Endpoint)
	if endpoint == "" || strings.TrimSpace(c.Bucket) == "" || c.AccessKey == "" || c.SecretKey == "" {
		return nil, errors.New("r2s3: endpoint, bucket and key pair are required")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("r2s3: endpoint: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("r2s3: endpoint has no host: %s", c.Endpoint)
	}
	region := c.Region
	if region == "" {
		region = "auto"
	}
	return &Client{
		base:   u,
		bucket: strings.TrimSpace(c.Bucket),
		sign:   signer{accessKey: c.AccessKey, secretKey: c.SecretKey, region: region},
		http:   &http.Client{Timeout: 2 * time.Minute},
		now:    time.Now,
	}, nil
}

// Put uploads body under key. body is read twice: once to hash and once to send.
func (c *Client) Put(ctx context.Context, key string, body io.ReadSeeker, contentType string) error {
	key = cleanKey(key)
	if key == "" {
		return errors.New("r2s3: empty or escaping object key")
	}
	h := sha256.New()
	size, err := io.Copy(h, body)
	if err != nil {
		return err
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return err
	}

	u := *c.base
	u.Path = "/" + c.bucket + "/" + key
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.String(), io.NopCloser(body))
	if err != nil {
		return err
	}
	req.ContentLength = size
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.sign.sign(req, hex.EncodeToString(h.Sum(nil)), c.now().UTC())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("r2s3: put %s: status %d: %s", key, resp.StatusCode, strings.TrimSpace(string(msg)))
}

type signer struct {
	accessKey string
	secretKey string
	region    string
}

// sign sets x-amz-* and Authorization headers on req. Only host and the
// x-amz headers are signed.
func (s signer) sign(req *http.Request, payloadHash string, at time.Time) {
	stamp := at.Format("20060102T150405Z")
	day := at.Format("20060102")
	req.Header.Set("x-amz-content-sha256", payloadHash)
	req.Header.Set("x-amz-date", stamp)

	const signed = "host;x-amz-content-sha256;x-amz-date"
	canonical := strings.Join([]string{
		req.Method,
		req.URL.EscapedPath(),
		req.URL.RawQuery,
		"host:" + req.URL.Host + "\nx-amz-content-sha256:" + payloadHash + "\nx-amz-date:" + stamp + "\n",
		signed,
		payloadHash,
	}, "\n")
	scope := day + "/" + s.region + "/" + service + "/aws4_request"
	toSign := algorithm + "\n" + stamp + "\n" + scope + "\n" + hashHex([]byte(canonical))

	key := []byte("AWS4" + s.secretKey)
	for _, part := range []string{day, s.region, service, "aws4_request"} {
		key = mac(key, part)
	}
	sig := hex.EncodeToString(mac(key, toSign))
	req.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s", algorithm, s.accessKey, scope, signed, sig))
}

func cleanKey(key string) string {
	key = strings.Trim(strings.ReplaceAll(strings.TrimSpace(key), "\\", "/"), "/")
	if key == "" {
		return ""
	}
	c := path.Clean(key)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return ""
	}
	return c
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func mac(key []byte, data string) []byte {
	m := hmac.New(sha256.New, key)
	m.Write([]byte(data))
	return m.Sum(nil)
}
