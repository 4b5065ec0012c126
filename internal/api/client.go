package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"anythingllm-sync/pkg/models"
)

// Skip-worthy upload outcomes. Neither fails the run; the engine logs
// the item and moves on.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrEmptyFile           = errors.New("empty file")
)

// sheetPattern matches a per-sheet artifact of an uploaded
// spreadsheet, e.g. report.xlsx-2ce4/sheet-Form-responses-1.json. The
// remote store manages the sheets of one spreadsheet as a unit keyed
// by the parent container segment.
var sheetPattern = regexp.MustCompile(`.*\.xlsx-\w+/sheet.*`)

// Client talks to the AnythingLLM v1 REST API for one workspace.
type Client struct {
	baseURL   string
	apiKey    string
	workspace string
	http      *http.Client
	logger    *zap.SugaredLogger
}

// New creates a client for the given endpoint and workspace.
func New(baseURL, apiKey, workspace string, logger *zap.SugaredLogger) *Client {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		workspace: workspace,
		http:      &http.Client{Transport: tr, Timeout: 2 * time.Minute},
		logger:    logger,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

// doJSON performs one JSON round trip. A non-200 status is an error
// carrying the response body as the reason.
func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(data)))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
		}
	}
	return nil
}

// Authenticate verifies the API key against the instance.
func (c *Client) Authenticate(ctx context.Context) error {
	var out struct {
		Authenticated bool `json:"authenticated"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/auth", nil, &out); err != nil {
		return err
	}
	if !out.Authenticated {
		return errors.New("API key rejected")
	}
	return nil
}

// Upload pushes one local file to the document store and returns the
// location and verbatim document payload the server assigned to it.
// Zero-byte files and unsupported types return ErrEmptyFile and
// ErrUnsupportedFileType respectively.
func (c *Client) Upload(ctx context.Context, path string) (*models.UploadResult, error) {
	if !SupportedFileType(path) {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFileType)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/document/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upload %s: %s: %s", path, resp.Status, strings.TrimSpace(string(data)))
	}

	var out struct {
		Success   bool              `json:"success"`
		Error     string            `json:"error"`
		Documents []json.RawMessage `json:"documents"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("upload %s: decoding response: %w", path, err)
	}
	if !out.Success {
		return nil, fmt.Errorf("upload %s: %s", path, out.Error)
	}
	if len(out.Documents) == 0 {
		return nil, fmt.Errorf("upload %s: response contained no documents", path)
	}

	var doc struct {
		Location string `json:"location"`
	}
	if err := json.Unmarshal(out.Documents[0], &doc); err != nil {
		return nil, fmt.Errorf("upload %s: decoding document: %w", path, err)
	}
	if doc.Location == "" {
		return nil, fmt.Errorf("upload %s: response document has no location", path)
	}
	return &models.UploadResult{Location: doc.Location, Metadata: string(out.Documents[0])}, nil
}

type embeddingUpdate struct {
	Adds    []string `json:"adds,omitempty"`
	Deletes []string `json:"deletes,omitempty"`
}

func (c *Client) updateEmbeddings(ctx context.Context, update embeddingUpdate) error {
	path := fmt.Sprintf("/api/v1/workspace/%s/update-embeddings", c.workspace)
	return c.doJSON(ctx, http.MethodPost, path, update, nil)
}

// Embed adds an uploaded document to the workspace vector index.
func (c *Client) Embed(ctx context.Context, location string) error {
	return c.updateEmbeddings(ctx, embeddingUpdate{Adds: []string{location}})
}

// Unembed removes a document from the workspace vector index. The raw
// upload stays in place.
func (c *Client) Unembed(ctx context.Context, location string) error {
	return c.updateEmbeddings(ctx, embeddingUpdate{Deletes: []string{location}})
}

// UnembedAll removes every given location in a single call.
func (c *Client) UnembedAll(ctx context.Context, locations []string) error {
	if len(locations) == 0 {
		return nil
	}
	return c.updateEmbeddings(ctx, embeddingUpdate{Deletes: locations})
}

type removePayload struct {
	Names []string `json:"names"`
}

// Unload deletes a raw uploaded document from storage. Per-sheet
// spreadsheet artifacts are rewritten to the parent container segment
// first, since the remote deletes a whole spreadsheet at a time.
func (c *Client) Unload(ctx context.Context, location string) error {
	if sheetPattern.MatchString(location) {
		parts := strings.Split(location, "/")
		location = parts[len(parts)-2]
	}
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/system/remove-documents", removePayload{Names: []string{location}}, nil)
}

// RemoveRaw deletes the given raw uploads in a single call.
func (c *Client) RemoveRaw(ctx context.Context, locations []string) error {
	if len(locations) == 0 {
		return nil
	}
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/system/remove-documents", removePayload{Names: locations}, nil)
}

// ListEmbedded returns the set of document locations currently
// embedded in the workspace. The API may repeat a docpath; the set
// collapses duplicates.
func (c *Client) ListEmbedded(ctx context.Context) (map[string]struct{}, error) {
	var out struct {
		Workspace []struct {
			Documents []struct {
				Docpath string `json:"docpath"`
			} `json:"documents"`
		} `json:"workspace"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/workspace/"+c.workspace, nil, &out); err != nil {
		return nil, err
	}

	embedded := make(map[string]struct{})
	for _, ws := range out.Workspace {
		for _, doc := range ws.Documents {
			embedded[doc.Docpath] = struct{}{}
		}
	}
	return embedded, nil
}

// FolderNode is one entry of the remote document tree: a file, or a
// folder holding further nodes.
type FolderNode struct {
	Name  string       `json:"name"`
	Type  string       `json:"type"`
	Items []FolderNode `json:"items"`
}

// ListDocuments fetches the name of every uploaded document, embedded
// or not, by flattening the remote folder tree.
func (c *Client) ListDocuments(ctx context.Context) ([]string, error) {
	var out struct {
		LocalFiles FolderNode `json:"localFiles"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/documents", nil, &out); err != nil {
		return nil, err
	}

	var names []string
	c.flatten(out.LocalFiles, &names)
	return names, nil
}

func (c *Client) flatten(node FolderNode, names *[]string) {
	switch node.Type {
	case "folder":
		for _, item := range node.Items {
			c.flatten(item, names)
		}
	case "file":
		*names = append(*names, node.Name)
	default:
		c.logger.Warnw("unknown document tree node type", "type", node.Type, "name", node.Name)
	}
}
