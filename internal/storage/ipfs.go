package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	operatorerrors "github.com/stellar/stellar-operator/internal/errors"
)

// IPFSStore archives objects through the IPFS HTTP API (kubo).
type IPFSStore struct {
	apiURL     string
	gatewayURL string
	client     *retryablehttp.Client
}

// NewIPFSStore returns a store for the API at apiURL. Retrievals go through
// gatewayURL when set and through the API otherwise.
func NewIPFSStore(apiURL, gatewayURL string, client *retryablehttp.Client) *IPFSStore {
	return &IPFSStore{
		apiURL:     strings.TrimRight(apiURL, "/"),
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		client:     client,
	}
}

type ipfsAddResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

type ipfsPinLsResponse struct {
	Keys map[string]struct {
		Type string `json:"Type"`
	} `json:"Keys"`
}

func (s *IPFSStore) lookup(ctx context.Context, data []byte, meta UploadMetadata) (string, bool, error) {
	cid, err := s.add(ctx, data, meta, url.Values{"only-hash": {"true"}, "pin": {"false"}})
	if err != nil {
		return "", false, err
	}
	found, err := s.exists(ctx, cid)
	return cid, found, err
}

func (s *IPFSStore) upload(ctx context.Context, data []byte, meta UploadMetadata) (string, error) {
	return s.add(ctx, data, meta, url.Values{"pin": {"true"}})
}

func (s *IPFSStore) add(ctx context.Context, data []byte, meta UploadMetadata, params url.Values) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	filename := meta.Filename
	if filename == "" {
		filename = meta.SHA256 + ".json"
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/api/v0/add?"+params.Encode(), body.Bytes())
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out ipfsAddResponse
	if err := doJSON(s.client, req, "ipfs add", &out); err != nil {
		return "", err
	}
	if out.Hash == "" {
		return "", fmt.Errorf("ipfs add: missing Hash in response")
	}
	return out.Hash, nil
}

func (s *IPFSStore) exists(ctx context.Context, cid string) (bool, error) {
	q := url.Values{"arg": {cid}, "type": {"recursive"}}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/api/v0/pin/ls?"+q.Encode(), nil)
	if err != nil {
		return false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false, operatorerrors.Network("ipfs pin ls", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}
	if resp.StatusCode != http.StatusOK {
		if strings.Contains(string(raw), "not pinned") {
			return false, nil
		}
		return false, statusError("ipfs pin ls", resp.StatusCode, raw)
	}
	var out ipfsPinLsResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return false, fmt.Errorf("ipfs pin ls: %w", err)
	}
	_, ok := out.Keys[cid]
	return ok, nil
}

func (s *IPFSStore) retrieve(ctx context.Context, cid string) ([]byte, error) {
	var (
		req *retryablehttp.Request
		err error
	)
	if s.gatewayURL != "" {
		req, err = retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.gatewayURL+"/ipfs/"+url.PathEscape(cid), nil)
	} else {
		q := url.Values{"arg": {cid}}
		req, err = retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/api/v0/cat?"+q.Encode(), nil)
	}
	if err != nil {
		return nil, err
	}
	return doBytes(s.client, req, "ipfs cat")
}

func doBytes(client *retryablehttp.Client, req *retryablehttp.Request, op string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, operatorerrors.Network(op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, operatorerrors.Network(op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(op, resp.StatusCode, raw)
	}
	return raw, nil
}

func doJSON(client *retryablehttp.Client, req *retryablehttp.Request, op string, out interface{}) error {
	raw, err := doBytes(client, req, op)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func statusError(op string, code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	err := fmt.Errorf("%s: unexpected status %d: %s", op, code, msg)
	if code >= http.StatusInternalServerError || code == http.StatusTooManyRequests {
		return operatorerrors.Network(op, err)
	}
	return err
}
