package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	"github.com/stellar/stellar-operator/internal/constants"
	operatorerrors "github.com/stellar/stellar-operator/internal/errors"
)

// HealthChecker reports whether one node pod is healthy.
type HealthChecker interface {
	Healthy(ctx context.Context, nodeType stellarv1alpha1.NodeType, host string) (bool, error)
}

// stellar-core reports this state once it is in sync with the network.
const coreStateSynced = "Synced!"

type horizonHealth struct {
	DatabaseConnected bool `json:"database_connected"`
	CoreUp            bool `json:"core_up"`
	CoreSynced        bool `json:"core_synced"`
}

type rpcHealthResponse struct {
	Result *struct {
		Status string `json:"status"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Healthy checks one pod at host:
//   - Validator: stellar-core /info reports Synced!.
//   - Horizon: /health reports core synced and the database connected.
//   - SorobanRpc: the getHealth JSON-RPC method reports healthy.
func (p *PeerProber) Healthy(ctx context.Context, nodeType stellarv1alpha1.NodeType, host string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	var (
		ok  bool
		err error
	)
	switch nodeType {
	case stellarv1alpha1.NodeTypeValidator:
		var info *coreInfo
		info, err = p.fetchInfo(ctx, host, p.InfoPort)
		ok = err == nil && info.Info.State == coreStateSynced
	case stellarv1alpha1.NodeTypeHorizon:
		var h horizonHealth
		err = p.doJSON(ctx, http.MethodGet, p.serviceURL(host, constants.PortHorizonHTTP, p.HorizonPort)+"/health", nil, &h)
		ok = err == nil && h.CoreSynced && h.DatabaseConnected
	case stellarv1alpha1.NodeTypeSorobanRpc:
		var r rpcHealthResponse
		body := []byte(`{"jsonrpc":"2.0","id":1,"method":"getHealth"}`)
		err = p.doJSON(ctx, http.MethodPost, p.serviceURL(host, constants.PortSorobanRPC, p.SorobanPort), body, &r)
		ok = err == nil && r.Error == nil && r.Result != nil && r.Result.Status == "healthy"
	default:
		return false, operatorerrors.Config("health", fmt.Errorf("unsupported node type %q", nodeType))
	}
	if err != nil {
		return false, operatorerrors.Network("health "+host, err)
	}
	return ok, nil
}

func (p *PeerProber) serviceURL(host string, def, override int32) string {
	port := def
	if override != 0 {
		port = override
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(int(port)))
}

func (p *PeerProber) doJSON(ctx context.Context, method, url string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	// Horizon answers 503 with a body when unhealthy; decode it either way.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
