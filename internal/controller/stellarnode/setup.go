package stellarnode

import (
	"golang.org/x/time/rate"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/util/workqueue"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/controller"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	controllerutil "github.com/stellar/stellar-operator/internal/controller"
	operatorerrors "github.com/stellar/stellar-operator/internal/errors"
)

const defaultMaxConcurrentReconciles = 3

// SetupWithManager sets up the StellarNode controller with the Manager.
// Owned workloads and Services are watched so readiness changes wake the
// node without waiting for the next scheduled tick.
func (r *StellarNodeReconciler) SetupWithManager(mgr ctrl.Manager) error {
	maxConcurrent := r.MaxConcurrentReconciles
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentReconciles
	}

	return ctrl.NewControllerManagedBy(mgr).
		For(&stellarv1alpha1.StellarNode{}, builder.WithPredicates(controllerutil.StellarNodePredicate())).
		Owns(&appsv1.Deployment{}, builder.WithPredicates(controllerutil.WorkloadReadinessPredicate())).
		Owns(&appsv1.StatefulSet{}, builder.WithPredicates(controllerutil.WorkloadReadinessPredicate())).
		Owns(&corev1.Service{}).
		WithOptions(controller.Options{
			MaxConcurrentReconciles: maxConcurrent,
			RateLimiter:             newRateLimiter(),
		}).
		Named(ControllerName).
		Complete(r)
}

// newRateLimiter backs off failing nodes per item and caps the overall retry rate.
func newRateLimiter() workqueue.TypedRateLimiter[ctrl.Request] {
	return workqueue.NewTypedMaxOfRateLimiter(
		workqueue.NewTypedItemExponentialFailureRateLimiter[ctrl.Request](operatorerrors.DefaultPolicy.Base, operatorerrors.DefaultPolicy.Max),
		&workqueue.TypedBucketRateLimiter[ctrl.Request]{Limiter: rate.NewLimiter(rate.Limit(10), 100)},
	)
}
