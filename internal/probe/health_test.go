package probe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	operatorerrors "github.com/stellar/stellar-operator/internal/errors"
)

func TestPeerProber_Healthy(t *testing.T) {
	tests := []struct {
		name     string
		nodeType stellarv1alpha1.NodeType
		status   int
		body     string
		want     bool
	}{
		{"core synced", stellarv1alpha1.NodeTypeValidator, 200, `{"info":{"state":"Synced!","ledger":{"num":1}}}`, true},
		{"core catching up", stellarv1alpha1.NodeTypeValidator, 200, `{"info":{"state":"Catching up","ledger":{"num":1}}}`, false},
		{"horizon healthy", stellarv1alpha1.NodeTypeHorizon, 200, `{"database_connected":true,"core_up":true,"core_synced":true}`, true},
		{"horizon core not synced", stellarv1alpha1.NodeTypeHorizon, 503, `{"database_connected":true,"core_up":true,"core_synced":false}`, false},
		{"soroban healthy", stellarv1alpha1.NodeTypeSorobanRpc, 200, `{"jsonrpc":"2.0","id":1,"result":{"status":"healthy"}}`, true},
		{"soroban error", stellarv1alpha1.NodeTypeSorobanRpc, 200, `{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"latency too high"}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.nodeType == stellarv1alpha1.NodeTypeSorobanRpc {
					body, _ := io.ReadAll(r.Body)
					if !strings.Contains(string(body), `"getHealth"`) {
						http.Error(w, "unexpected method", http.StatusBadRequest)
						return
					}
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			host, port := hostPort(t, srv.Listener.Addr().String())

			p := NewPeerProber(2 * time.Second)
			p.InfoPort, p.HorizonPort, p.SorobanPort = port, port, port

			got, err := p.Healthy(context.Background(), tt.nodeType, host)
			if err != nil {
				t.Fatalf("Healthy() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Healthy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPeerProber_HealthyUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host, port := hostPort(t, srv.Listener.Addr().String())
	srv.Close()

	p := NewPeerProber(time.Second)
	p.InfoPort = port
	ok, err := p.Healthy(context.Background(), stellarv1alpha1.NodeTypeValidator, host)
	if ok {
		t.Error("Healthy() = true for unreachable pod")
	}
	if operatorerrors.KindOf(err) != operatorerrors.KindNetwork {
		t.Errorf("error kind = %v, want Network", operatorerrors.KindOf(err))
	}
}
