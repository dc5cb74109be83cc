package kube

import (
	"context"
	"fmt"
	"maps"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	awsplatform "github.com/imamik/eksforge/internal/platform/aws"
)

// Access implements provisioning.ClusterAccess over a controller-runtime
// client.
type Access struct {
	client client.Client
}

// NewAccess wraps c.
func NewAccess(c client.Client) *Access {
	return &Access{client: c}
}

// EnsureServiceAccount implements provisioning.ClusterAccess. Annotations
// are merged into any existing ones; the namespace is created if missing.
func (a *Access) EnsureServiceAccount(ctx context.Context, namespace, name string, annotations map[string]string) error {
	if err := a.ensureNamespace(ctx, namespace); err != nil {
		return err
	}

	sa := &corev1.ServiceAccount{ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name}}
	_, err := controllerutil.CreateOrUpdate(ctx, a.client, sa, func() error {
		if sa.Annotations == nil {
			sa.Annotations = map[string]string{}
		}
		maps.Copy(sa.Annotations, annotations)
		if sa.Labels == nil {
			sa.Labels = map[string]string{}
		}
		sa.Labels["app.kubernetes.io/managed-by"] = awsplatform.ManagedBy
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to ensure service account %s/%s: %w", namespace, name, err)
	}
	return nil
}

func (a *Access) ensureNamespace(ctx context.Context, name string) error {
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name}}
	err := a.client.Create(ctx, ns)
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create namespace %s: %w", name, err)
	}
	return nil
}
