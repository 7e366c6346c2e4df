// Package app assembles the collaborators shared by every StellarNode
// reconcile. A Context is built once at startup and handed to the controller;
// nothing in it is a package-level global.
package app

import (
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/stellar/stellar-operator/internal/cve"
	"github.com/stellar/stellar-operator/internal/dr"
	"github.com/stellar/stellar-operator/internal/metrics"
	"github.com/stellar/stellar-operator/internal/migration"
	"github.com/stellar/stellar-operator/internal/probe"
	"github.com/stellar/stellar-operator/internal/resources"
	"github.com/stellar/stellar-operator/internal/security"
)

// Options configures New.
type Options struct {
	// DryRun routes every mutation through a resources.DryRunEnsurer.
	DryRun bool
	// ScannerURL is the base URL of the vulnerability scan service.
	ScannerURL string
	// PeerProbeTimeout bounds each peer and pod probe. Zero uses the default.
	PeerProbeTimeout time.Duration
	// OperatorNamespace is the namespace the operator runs in.
	OperatorNamespace string
	// Logger is used by long-lived collaborators such as the image verifier.
	Logger logr.Logger
}

// Context holds the collaborators of a reconcile.
type Context struct {
	Client   client.Client
	Scheme   *runtime.Scheme
	Recorder record.EventRecorder
	Metrics  *metrics.Metrics
	Ensurer  resources.Ensurer
	Prober   probe.Prober
	Ledger   probe.LedgerReader
	Health   probe.HealthChecker
	Scanner  cve.Scanner
	Resolver cve.PatchResolver
	Verifier cve.ImageVerifier
	Archiver cve.ReportArchiver
	Clock    clock.PassiveClock

	DryRun            bool
	OperatorNamespace string
}

// New builds a Context. Metrics are registered into reg.
func New(c client.Client, scheme *runtime.Scheme, recorder record.EventRecorder, reg prometheus.Registerer, opts Options) (*Context, error) {
	m, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	var ensurer resources.Ensurer = resources.NewKubeEnsurer(c, scheme)
	if opts.DryRun {
		ensurer = resources.NewDryRunEnsurer(c, recorder, m)
	}

	prober := probe.NewPeerProber(opts.PeerProbeTimeout)
	scanner := cve.NewTrivyScanner(opts.ScannerURL, nil)

	return &Context{
		Client:            c,
		Scheme:            scheme,
		Recorder:          recorder,
		Metrics:           m,
		Ensurer:           ensurer,
		Prober:            prober,
		Ledger:            prober,
		Health:            prober,
		Scanner:           scanner,
		Resolver:          &cve.RegistryResolver{Scanner: scanner},
		Verifier:          security.NewImageVerifier(opts.Logger.WithName("image-verifier"), c, nil),
		Archiver:          &cve.StorageArchiver{Client: c},
		Clock:             clock.RealClock{},
		DryRun:            opts.DryRun,
		OperatorNamespace: opts.OperatorNamespace,
	}, nil
}

// MigrationMachine returns the migration state machine bound to this context.
func (a *Context) MigrationMachine() *migration.Machine {
	return &migration.Machine{Ensurer: a.Ensurer, Clock: a.Clock}
}

// DRMachine returns the DR state machine bound to this context.
func (a *Context) DRMachine() *dr.Machine {
	return &dr.Machine{Prober: a.Prober, Clock: a.Clock}
}

// CVEMachine returns the CVE state machine bound to this context.
func (a *Context) CVEMachine() *cve.Machine {
	return &cve.Machine{
		Client:   a.Client,
		Ensurer:  a.Ensurer,
		Scanner:  a.Scanner,
		Health:   a.Health,
		Clock:    a.Clock,
		Resolver: a.Resolver,
		Verifier: a.Verifier,
		Archiver: a.Archiver,
		Metrics:  a.Metrics,
	}
}
