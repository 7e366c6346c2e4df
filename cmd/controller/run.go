/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package controller

import (
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	// to ensure that exec-entrypoint and run can make use of them.
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
	"sigs.k8s.io/controller-runtime/pkg/metrics/filters"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
	"sigs.k8s.io/controller-runtime/pkg/webhook"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	"github.com/stellar/stellar-operator/internal/app"
	"github.com/stellar/stellar-operator/internal/constants"
	"github.com/stellar/stellar-operator/internal/controller/stellarnode"
	"github.com/stellar/stellar-operator/internal/webhook/resourcelock"
)

const (
	defaultOperatorNamespace = "stellar-operator-system"
	defaultScannerURL        = "http://trivy.trivy-system.svc:4954"
	leaderElectionID         = "stellar-operator-leader.stellar.org"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(stellarv1alpha1.AddToScheme(scheme))
}

// options are the parsed command line settings of the controller.
type options struct {
	metricsAddr             string
	probeAddr               string
	enableLeaderElection    bool
	secureMetrics           bool
	enableHTTP2             bool
	dryRun                  bool
	maxConcurrentReconciles int
	scannerURL              string
	peerProbeTimeout        time.Duration
	enableWebhooks          bool
	zap                     zap.Options
}

// parseFlags parses args. getenv supplies DRY_RUN, which enables dry-run
// mode when the flag is not given.
func parseFlags(args []string, getenv func(string) string) (*options, error) {
	o := &options{zap: zap.Options{Development: true}}
	fs := flag.NewFlagSet("controller", flag.ContinueOnError)

	fs.StringVar(&o.metricsAddr, "metrics-bind-address", ":8443", "The address the metrics endpoint binds to.")
	fs.StringVar(&o.probeAddr, "health-probe-bind-address", ":8081", "The address the probe endpoint binds to.")
	fs.BoolVar(&o.enableLeaderElection, "leader-elect", false,
		"Enable leader election for controller manager. "+
			"Enabling this will ensure there is only one active controller manager.")
	fs.BoolVar(&o.secureMetrics, "metrics-secure", true,
		"If set, the metrics endpoint is served securely via HTTPS. Use --metrics-secure=false to use HTTP instead.")
	fs.BoolVar(&o.enableHTTP2, "enable-http2", false,
		"If set, HTTP/2 will be enabled for the metrics server")
	fs.BoolVar(&o.dryRun, "dry-run", false,
		"Report every create, update and delete as an event instead of applying it. Also enabled by DRY_RUN=true.")
	fs.IntVar(&o.maxConcurrentReconciles, "max-concurrent-reconciles", 3,
		"Maximum number of StellarNodes reconciled in parallel.")
	fs.StringVar(&o.scannerURL, "scanner-url", defaultScannerURL, "Base URL of the vulnerability scan service.")
	fs.DurationVar(&o.peerProbeTimeout, "peer-probe-timeout", 0,
		"Timeout of a single peer or pod probe. Zero uses the built-in default.")
	fs.BoolVar(&o.enableWebhooks, "enable-webhooks", true, "Serve the StellarNode defaulting and validating webhooks.")
	o.zap.BindFlags(fs)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	dryRunSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "dry-run" {
			dryRunSet = true
		}
	})
	if !dryRunSet {
		if v := getenv(constants.EnvDryRun); v != "" {
			enabled, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("invalid DRY_RUN value %q: %w", v, err)
			}
			o.dryRun = enabled
		}
	}

	if o.maxConcurrentReconciles < 1 {
		return nil, fmt.Errorf("--max-concurrent-reconciles must be at least 1, got %d", o.maxConcurrentReconciles)
	}
	if o.peerProbeTimeout < 0 {
		return nil, fmt.Errorf("--peer-probe-timeout must not be negative, got %s", o.peerProbeTimeout)
	}
	return o, nil
}

func operatorNamespace(getenv func(string) string) string {
	if ns := getenv(constants.EnvPodNamespace); ns != "" {
		return ns
	}
	return defaultOperatorNamespace
}

// Run starts the StellarNode controller manager.
func Run(args []string) error {
	o, err := parseFlags(args, os.Getenv)
	if err != nil {
		return err
	}
	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&o.zap)))

	var tlsOpts []func(*tls.Config)
	// if the enable-http2 flag is false (the default), http/2 should be disabled
	// due to its vulnerabilities. More specifically, disabling http/2 will
	// prevent from being vulnerable to the HTTP/2 Stream Cancellation and
	// Rapid Reset CVEs.
	if !o.enableHTTP2 {
		tlsOpts = append(tlsOpts, func(c *tls.Config) {
			setupLog.Info("disabling http/2")
			c.NextProtos = []string{"http/1.1"}
		})
	}

	metricsServerOptions := metricsserver.Options{
		BindAddress:   o.metricsAddr,
		SecureServing: o.secureMetrics,
		TLSOpts:       tlsOpts,
	}
	if o.secureMetrics {
		metricsServerOptions.FilterProvider = filters.WithAuthenticationAndAuthorization
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsServerOptions,
		HealthProbeBindAddress: o.probeAddr,
		LeaderElection:         o.enableLeaderElection,
		LeaderElectionID:       leaderElectionID,
		// Secrets are read with direct GETs so the operator never needs to
		// list or watch them cluster-wide.
		Client: client.Options{
			Cache: &client.CacheOptions{
				DisableFor: []client.Object{&corev1.Secret{}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("unable to start manager: %w", err)
	}

	namespace := operatorNamespace(os.Getenv)
	setupLog.Info("Starting StellarNode operator",
		"namespace", namespace, "dryRun", o.dryRun, "maxConcurrentReconciles", o.maxConcurrentReconciles)
	if o.dryRun {
		setupLog.Info("Dry Run mode enabled: no cluster resources will be created, updated or deleted")
	}

	appCtx, err := app.New(mgr.GetClient(), mgr.GetScheme(), mgr.GetEventRecorderFor("stellar-operator"),
		ctrlmetrics.Registry, app.Options{
			DryRun:            o.dryRun,
			ScannerURL:        o.scannerURL,
			PeerProbeTimeout:  o.peerProbeTimeout,
			OperatorNamespace: namespace,
			Logger:            ctrl.Log,
		})
	if err != nil {
		return err
	}

	if err := (&stellarnode.StellarNodeReconciler{
		Client:                  mgr.GetClient(),
		App:                     appCtx,
		MaxConcurrentReconciles: o.maxConcurrentReconciles,
	}).SetupWithManager(mgr); err != nil {
		return fmt.Errorf("unable to create controller %q: %w", stellarnode.ControllerName, err)
	}

	if o.enableWebhooks {
		if err := (&stellarv1alpha1.StellarNode{}).SetupWebhookWithManager(mgr); err != nil {
			return fmt.Errorf("unable to create webhook for StellarNode: %w", err)
		}
		validator := resourcelock.NewValidator(ctrl.Log, admission.NewDecoder(mgr.GetScheme()), os.Getenv)
		mgr.GetWebhookServer().Register(resourcelock.Path, &webhook.Admission{Handler: validator})
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return fmt.Errorf("unable to set up health check: %w", err)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		return fmt.Errorf("unable to set up ready check: %w", err)
	}

	setupLog.Info("starting controller manager")
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		return fmt.Errorf("problem running manager: %w", err)
	}
	return nil
}
