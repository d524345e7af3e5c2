package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Blob archives files into an HTTP blob service: POST the bytes to
// {base}/files/{name}, DELETE {base}/files/{id}. The service replies with
// the public URL and file id.
type Blob struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewBlob(baseURL, token string) *Blob {
	return &Blob{
		baseURL: baseURL,
		token:   token,
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

var _ Storage = (*Blob)(nil)

type blobResponse struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

func (b *Blob) UploadFile(ctx context.Context, localPath, name, mime string) (Stored, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return Stored{}, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/files/"+url.PathEscape(name), f)
	if err != nil {
		return Stored{}, err
	}
	req.Header.Set("Content-Type", mime)
	req.Header.Set("Authorization", "Bearer "+b.token)

	resp, err := b.http.Do(req)
	if err != nil {
		return Stored{}, fmt.Errorf("upload %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Stored{}, fmt.Errorf("upload %s: status %d", name, resp.StatusCode)
	}

	var out blobResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Stored{}, fmt.Errorf("decode upload response: %w", err)
	}
	return Stored{URL: out.URL, ID: out.ID}, nil
}

func (b *Blob) DeleteFile(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, b.baseURL+"/files/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+b.token)

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete %s: status %d", id, resp.StatusCode)
	}
	return nil
}
