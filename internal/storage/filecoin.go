package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

// FilecoinStore archives objects through a Lotus client API.
type FilecoinStore struct {
	lotusAPI      string
	walletAddress string
	client        *retryablehttp.Client
}

// NewFilecoinStore returns a store importing through lotusAPI and paying from walletAddress.
func NewFilecoinStore(lotusAPI, walletAddress string, client *retryablehttp.Client) *FilecoinStore {
	return &FilecoinStore{
		lotusAPI:      strings.TrimRight(lotusAPI, "/"),
		walletAddress: walletAddress,
		client:        client,
	}
}

type filecoinImportRequest struct {
	Data     string `json:"data"`
	Wallet   string `json:"wallet"`
	Filename string `json:"filename"`
}

type filecoinImportResponse struct {
	Root struct {
		CID string `json:"/"`
	} `json:"Root"`
}

type filecoinCIDRequest struct {
	CID string `json:"cid"`
}

type filecoinHasLocalResponse struct {
	Result bool `json:"result"`
}

// lookup never finds a match: Lotus indexes imports by CID only, and a
// repeated import of identical content yields the same root.
func (s *FilecoinStore) lookup(context.Context, []byte, UploadMetadata) (string, bool, error) {
	return "", false, nil
}

func (s *FilecoinStore) upload(ctx context.Context, data []byte, meta UploadMetadata) (string, error) {
	filename := meta.Filename
	if filename == "" {
		filename = meta.SHA256 + ".json"
	}
	req, err := s.post(ctx, "/api/v0/client/import", filecoinImportRequest{
		Data:     base64.StdEncoding.EncodeToString(data),
		Wallet:   s.walletAddress,
		Filename: filename,
	})
	if err != nil {
		return "", err
	}
	var out filecoinImportResponse
	if err := doJSON(s.client, req, "filecoin import", &out); err != nil {
		return "", err
	}
	if out.Root.CID == "" {
		return "", fmt.Errorf("filecoin import: missing CID in response")
	}
	return out.Root.CID, nil
}

func (s *FilecoinStore) exists(ctx context.Context, cid string) (bool, error) {
	req, err := s.post(ctx, "/api/v0/client/has-local", filecoinCIDRequest{CID: cid})
	if err != nil {
		return false, err
	}
	var out filecoinHasLocalResponse
	if err := doJSON(s.client, req, "filecoin has-local", &out); err != nil {
		return false, err
	}
	return out.Result, nil
}

func (s *FilecoinStore) retrieve(ctx context.Context, cid string) ([]byte, error) {
	req, err := s.post(ctx, "/api/v0/client/retrieve", filecoinCIDRequest{CID: cid})
	if err != nil {
		return nil, err
	}
	return doBytes(s.client, req, "filecoin retrieve")
}

func (s *FilecoinStore) post(ctx context.Context, path string, body interface{}) (*retryablehttp.Request, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.lotusAPI+path, raw)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
