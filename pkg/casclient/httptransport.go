package casclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/brinevault/brine/pkg/node"
)

// HTTPTransport speaks the wire API of §6 over net/http, for a Writer running
// out-of-process against casd. Every call carries the same bearer token;
// tickets and signed requests are out of scope for this transport (a
// ticket-bound client talks to casd directly over its own bearer-equivalent
// ticket id instead).
type HTTPTransport struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPTransport builds a Transport against a running casd instance at
// baseURL, authenticating every call with the given bearer token (a user or
// agent token id).
func NewHTTPTransport(baseURL, token string) *HTTPTransport {
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  http.DefaultClient,
	}
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("casclient: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	return t.client.Do(req)
}

func (t *HTTPTransport) UploadChunk(ctx context.Context, realm, key string, data []byte) error {
	resp, err := t.do(ctx, http.MethodPut, fmt.Sprintf("/cas/%s/chunk/%s", realm, key), data)
	if err != nil {
		return fmt.Errorf("casclient: uploading chunk %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return wireError(resp)
	}
	return nil
}

func (t *HTTPTransport) Commit(ctx context.Context, realm string, req CommitRequest) (CommitResponse, error) {
	files := make(map[string]fileManifestWire, len(req.Files))
	for key, f := range req.Files {
		files[key] = fileManifestWire{Chunks: f.Chunks, ContentType: f.ContentType, Size: f.Size}
	}
	collections := make(map[string]collectionManifestWire, len(req.Collections))
	for key, c := range req.Collections {
		collections[key] = collectionManifestWire{Children: c.Children, Size: c.Size}
	}
	body, err := json.Marshal(commitRequestWire{Root: req.Root, Files: files, Collections: collections})
	if err != nil {
		return CommitResponse{}, fmt.Errorf("casclient: encoding commit request: %w", err)
	}

	resp, err := t.do(ctx, http.MethodPost, "/cas/"+realm+"/commit", body)
	if err != nil {
		return CommitResponse{}, fmt.Errorf("casclient: submitting commit: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return CommitResponse{}, fmt.Errorf("casclient: reading commit response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var out struct {
			Success   bool     `json:"success"`
			Root      string   `json:"root"`
			Committed []string `json:"committed"`
		}
		if err := json.Unmarshal(payload, &out); err != nil {
			return CommitResponse{}, fmt.Errorf("casclient: decoding commit response: %w", err)
		}
		return CommitResponse{Success: out.Success, Root: out.Root, Committed: out.Committed}, nil
	case http.StatusConflict:
		var out struct {
			Missing []string `json:"missing"`
		}
		if err := json.Unmarshal(payload, &out); err != nil {
			return CommitResponse{}, fmt.Errorf("casclient: decoding missing_nodes response: %w", err)
		}
		return CommitResponse{Missing: out.Missing}, nil
	default:
		return CommitResponse{}, wireErrorFromBody(resp.StatusCode, payload)
	}
}

func (t *HTTPTransport) GetTree(ctx context.Context, realm, root string, nodeBudget int) (map[string]node.NodeInfo, string, error) {
	path := fmt.Sprintf("/cas/%s/tree/%s", realm, root)
	if nodeBudget > 0 {
		path += "?budget=" + strconv.Itoa(nodeBudget)
	}
	resp, err := t.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", fmt.Errorf("casclient: fetching tree: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", wireError(resp)
	}

	var out struct {
		Nodes map[string]node.NodeInfo `json:"nodes"`
		Next  string                   `json:"next"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, "", fmt.Errorf("casclient: decoding tree response: %w", err)
	}
	return out.Nodes, out.Next, nil
}

func (t *HTTPTransport) GetRaw(ctx context.Context, realm, key string) ([]byte, string, error) {
	resp, err := t.do(ctx, http.MethodGet, "/cas/"+realm+"/raw/"+url.PathEscape(key), nil)
	if err != nil {
		return nil, "", fmt.Errorf("casclient: fetching raw node: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", wireError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("casclient: reading raw node body: %w", err)
	}
	return data, resp.Header.Get("X-CAS-Content-Type"), nil
}

type fileManifestWire struct {
	Chunks      []string `json:"chunks"`
	ContentType string   `json:"contentType"`
	Size        int64    `json:"size"`
}

type collectionManifestWire struct {
	Children map[string]string `json:"children"`
	Size     int64             `json:"size"`
}

type commitRequestWire struct {
	Root        string                            `json:"root"`
	Files       map[string]fileManifestWire       `json:"files,omitempty"`
	Collections map[string]collectionManifestWire `json:"collections,omitempty"`
}

// wireError builds an error from a non-2xx response's {"error","message"}
// body (§7's wire error shape).
func wireError(resp *http.Response) error {
	payload, _ := io.ReadAll(resp.Body)
	return wireErrorFromBody(resp.StatusCode, payload)
}

func wireErrorFromBody(status int, payload []byte) error {
	var out struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &out); err != nil || out.Error == "" {
		return fmt.Errorf("casclient: server returned status %d", status)
	}
	return fmt.Errorf("casclient: %s: %s", out.Error, out.Message)
}
