// Package resourcestest provides an in-memory Ensurer for state machine tests.
package resourcestest

import (
	"context"
	"sync"

	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/stellar/stellar-operator/internal/kube"
)

// Ensurer records every mutation and serves workload statuses from a map.
// Ensured objects without a configured status report Exists=true and no
// ready replicas.
type Ensurer struct {
	mu sync.Mutex

	Ensured  []client.Object
	Deleted  []client.Object
	Statuses map[types.NamespacedName]kube.WorkloadStatus
	// Err, when set, is returned from every call.
	Err error
	// DryRunMode is returned from DryRun.
	DryRunMode bool

	live map[types.NamespacedName]client.Object
}

// New returns an empty Ensurer.
func New() *Ensurer {
	return &Ensurer{
		Statuses: map[types.NamespacedName]kube.WorkloadStatus{},
		live:     map[types.NamespacedName]client.Object{},
	}
}

func (e *Ensurer) Ensure(_ context.Context, _ client.Object, obj client.Object) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	e.Ensured = append(e.Ensured, obj)
	if e.live == nil {
		e.live = map[types.NamespacedName]client.Object{}
	}
	e.live[client.ObjectKeyFromObject(obj)] = obj
	return nil
}

func (e *Ensurer) Delete(_ context.Context, _ client.Object, obj client.Object) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	e.Deleted = append(e.Deleted, obj)
	delete(e.live, client.ObjectKeyFromObject(obj))
	delete(e.Statuses, client.ObjectKeyFromObject(obj))
	return nil
}

func (e *Ensurer) WorkloadStatus(_ context.Context, _ kube.WorkloadKind, key types.NamespacedName) (kube.WorkloadStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return kube.WorkloadStatus{}, e.Err
	}
	if s, ok := e.Statuses[key]; ok {
		return s, nil
	}
	obj, ok := e.live[key]
	if !ok {
		return kube.WorkloadStatus{}, nil
	}
	s, err := kube.WorkloadStatusOf(obj)
	if err != nil {
		return kube.WorkloadStatus{}, err
	}
	s.Ready = 0
	return s, nil
}

func (e *Ensurer) DryRun() bool { return e.DryRunMode }

// SetStatus sets the status served for key.
func (e *Ensurer) SetStatus(key types.NamespacedName, s kube.WorkloadStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Statuses[key] = s
}

// Object returns the last ensured object stored under key.
func (e *Ensurer) Object(key types.NamespacedName) (client.Object, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	obj, ok := e.live[key]
	return obj, ok
}

// Mutations is the number of Ensure and Delete calls recorded.
func (e *Ensurer) Mutations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Ensured) + len(e.Deleted)
}
