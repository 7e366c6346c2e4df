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

// Package stellarnode contains the StellarNode reconciler. One tick runs the
// migration, disaster recovery and CVE state machines in that order against an
// in-memory copy of the node and persists the result once.
package stellarnode

import (
	"context"
	"errors"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/util/wait"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	"github.com/stellar/stellar-operator/internal/app"
	"github.com/stellar/stellar-operator/internal/constants"
	operatorerrors "github.com/stellar/stellar-operator/internal/errors"
	"github.com/stellar/stellar-operator/internal/migration"
	"github.com/stellar/stellar-operator/internal/reconcile"
	"github.com/stellar/stellar-operator/internal/resources"
)

// ControllerName is the name of the StellarNode controller.
const ControllerName = "stellarnode"

// StellarNodeReconciler reconciles a StellarNode object.
type StellarNodeReconciler struct {
	client.Client
	App *app.Context
	// MaxConcurrentReconciles bounds parallel ticks across nodes. Zero uses 3.
	MaxConcurrentReconciles int
}

// +kubebuilder:rbac:groups=stellar.org,resources=stellarnodes,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=stellar.org,resources=stellarnodes/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=stellar.org,resources=stellarnodes/finalizers,verbs=update
// +kubebuilder:rbac:groups=apps,resources=deployments;statefulsets,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups="",resources=services,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups="",resources=pods,verbs=get;list;watch
// +kubebuilder:rbac:groups="",resources=secrets,verbs=get;list;watch
// +kubebuilder:rbac:groups="",resources=events,verbs=create;patch

// Reconcile runs one tick for a StellarNode.
func (r *StellarNodeReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithValues(
		"node_namespace", req.Namespace,
		"node_name", req.Name,
		"controller", ControllerName,
		"reconcile_id", time.Now().UnixNano(),
	)
	ctx = log.IntoContext(ctx, logger)

	node := &stellarv1alpha1.StellarNode{}
	if err := r.Get(ctx, req.NamespacedName, node); err != nil {
		if apierrors.IsNotFound(err) {
			logger.V(1).Info("StellarNode resource not found; assuming it was deleted")
			return ctrl.Result{}, nil
		}
		r.App.Metrics.IncrementError(string(operatorerrors.KindKube))
		return ctrl.Result{}, operatorerrors.Kube("get StellarNode", err)
	}

	nodeMetrics := r.App.Metrics.ForNode(node.Namespace, node.Name)
	startTime := time.Now()
	deleting := !node.DeletionTimestamp.IsZero()
	defer func() {
		if !deleting {
			nodeMetrics.ObserveDuration(ControllerName, time.Since(startTime).Seconds())
		}
	}()

	if deleting {
		logger.Info("StellarNode is marked for deletion")
		res, err := r.handleDeletion(ctx, node)
		if err != nil {
			r.App.Metrics.IncrementError(string(operatorerrors.KindOf(err)))
		}
		return res, err
	}

	if !controllerutil.ContainsFinalizer(node, stellarv1alpha1.StellarNodeFinalizer) {
		original := node.DeepCopy()
		controllerutil.AddFinalizer(node, stellarv1alpha1.StellarNodeFinalizer)
		if err := r.Patch(ctx, node, client.MergeFromWithOptions(original, client.MergeFromWithOptimisticLock{})); err != nil {
			r.App.Metrics.IncrementError(string(operatorerrors.KindKube))
			return ctrl.Result{}, operatorerrors.Kube("add finalizer",
				fmt.Errorf("failed to add finalizer to StellarNode %s/%s: %w", node.Namespace, node.Name, err))
		}
		// The finalizer change passes the event filter and triggers the next tick.
		return ctrl.Result{}, nil
	}

	original := node.DeepCopy()
	result, tickErr := r.tick(ctx, node)
	return r.settle(ctx, original, node, result, tickErr)
}

// settle persists the tick and applies the error policy. A tick joins the
// errors of independent steps; each is classified and counted on its own, and
// any transient one sends the node back to the rate limiter.
func (r *StellarNodeReconciler) settle(ctx context.Context, original, node *stellarv1alpha1.StellarNode,
	result reconcile.Result, tickErr error) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	var permanent, transient []error
	for _, err := range operatorerrors.Split(tickErr) {
		if operatorerrors.IsPermanent(err) {
			permanent = append(permanent, err)
		} else {
			transient = append(transient, err)
		}
	}
	if len(permanent) > 0 {
		r.reportPermanent(node, errors.Join(permanent...))
	}
	if err := r.persist(ctx, original, node); err != nil {
		transient = append(transient, err)
	}
	r.recordMetrics(node)

	for _, err := range append(permanent, transient...) {
		r.App.Metrics.IncrementError(string(operatorerrors.KindOf(err)))
	}
	if len(permanent) > 0 {
		logger.Error(errors.Join(permanent...), "StellarNode cannot be reconciled until its spec or configuration changes",
			"kind", operatorerrors.KindOf(permanent[0]))
	}
	if len(transient) > 0 {
		err := errors.Join(transient...)
		logger.Error(err, "Reconcile failed; retrying with backoff", "kind", operatorerrors.KindOf(transient[0]))
		return ctrl.Result{}, err
	}
	if len(permanent) > 0 {
		return ctrl.Result{}, nil
	}

	if result.IsZero() {
		result = reconcile.After(steadyStateRequeue())
	}
	return ctrl.Result{RequeueAfter: result.RequeueAfter}, nil
}

// tick mutates node in memory. The caller persists it whatever the outcome.
func (r *StellarNodeReconciler) tick(ctx context.Context, node *stellarv1alpha1.StellarNode) (reconcile.Result, error) {
	if err := node.Spec.Validate(); err != nil {
		return reconcile.Result{}, operatorerrors.Validation("validate spec", err)
	}

	stampProvenance(node)

	if err := r.ensureBase(ctx, node); err != nil {
		return reconcile.Result{}, err
	}
	r.observeLedger(ctx, node)

	roleBefore := currentDRRole(node)

	var (
		results []reconcile.Result
		errs    []error
	)
	for _, step := range []struct {
		name string
		run  func(context.Context, *stellarv1alpha1.StellarNode) (reconcile.Result, error)
	}{
		{name: "migration", run: r.App.MigrationMachine().Reconcile},
		{name: "dr", run: r.App.DRMachine().Reconcile},
		{name: "cve", run: r.App.CVEMachine().Reconcile},
	} {
		res, err := step.run(ctx, node)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		results = append(results, res)
	}

	if currentDRRole(node) != roleBefore {
		// The failover hostname follows the role the DR machine settled on.
		if err := r.App.Ensurer.Ensure(ctx, node, resources.BuildService(node)); err != nil {
			errs = append(errs, err)
		}
	}

	if err := r.observe(ctx, node); err != nil {
		errs = append(errs, err)
	}
	return reconcile.Min(results...), errors.Join(errs...)
}

// stampProvenance records the role change observed since the last tick and
// derives the Soroban config of nodes that opted into automatic migration.
// The derived config only lives in memory; the spec is never written back.
func stampProvenance(node *stellarv1alpha1.StellarNode) {
	stellarv1alpha1.StampProvenance(node, node.Status.ObservedNodeType)

	if node.Spec.NodeType == migration.TargetType && node.Spec.SorobanConfig == nil &&
		node.Spec.HorizonConfig != nil && node.Spec.HorizonConfig.AutoMigration {
		cfg := migration.MigrateConfig(*node.Spec.HorizonConfig)
		node.Spec.SorobanConfig = &cfg
	}
}

func (r *StellarNodeReconciler) ensureBase(ctx context.Context, node *stellarv1alpha1.StellarNode) error {
	if err := r.App.Ensurer.Ensure(ctx, node, resources.BuildWorkload(node, resources.WorkloadOptionsFor(node))); err != nil {
		return err
	}
	return r.App.Ensurer.Ensure(ctx, node, resources.BuildService(node))
}

// observeLedger records the node's last closed ledger. A failed read leaves
// it at zero, which marks the local ledger as unknown for the DR machine.
func (r *StellarNodeReconciler) observeLedger(ctx context.Context, node *stellarv1alpha1.StellarNode) {
	if r.App.Ledger == nil {
		return
	}
	node.Status.LedgerSequence = 0
	coreURL := resources.CoreInfoURL(node)
	if coreURL == "" || node.Spec.Suspended {
		return
	}
	seq, err := r.App.Ledger.LedgerSequence(ctx, coreURL)
	if err != nil {
		log.FromContext(ctx).V(1).Info("Local ledger unavailable", "url", coreURL, "error", err.Error())
		return
	}
	node.Status.LedgerSequence = seq
}

func currentDRRole(node *stellarv1alpha1.StellarNode) stellarv1alpha1.DRRole {
	if node.Status.DRStatus == nil {
		return ""
	}
	return node.Status.DRStatus.CurrentRole
}

func steadyStateRequeue() time.Duration {
	return wait.Jitter(constants.RequeueSteadyState,
		float64(constants.RequeueSteadyStateJitter)/float64(constants.RequeueSteadyState))
}
