package kube

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

const roleAnnotation = "eks.amazonaws.com/role-arn"

func TestEnsureServiceAccount(t *testing.T) {
	t.Parallel()

	t.Run("creates namespace and account", func(t *testing.T) {
		t.Parallel()
		c := fake.NewClientBuilder().WithScheme(newScheme()).Build()
		a := NewAccess(c)

		err := a.EnsureServiceAccount(context.Background(), "ingress", "lb", map[string]string{
			roleAnnotation: "arn:aws:iam::123456789012:role/lb",
		})
		require.NoError(t, err)

		ns := &corev1.Namespace{}
		require.NoError(t, c.Get(context.Background(), client.ObjectKey{Name: "ingress"}, ns))

		sa := &corev1.ServiceAccount{}
		require.NoError(t, c.Get(context.Background(), client.ObjectKey{Namespace: "ingress", Name: "lb"}, sa))
		assert.Equal(t, "arn:aws:iam::123456789012:role/lb", sa.Annotations[roleAnnotation])
		assert.Equal(t, "eksforge", sa.Labels["app.kubernetes.io/managed-by"])
	})

	t.Run("merges into existing annotations", func(t *testing.T) {
		t.Parallel()
		existing := &corev1.ServiceAccount{ObjectMeta: metav1.ObjectMeta{
			Namespace:   "kube-system",
			Name:        "aws-node",
			Annotations: map[string]string{"keep": "me", roleAnnotation: "old"},
		}}
		c := fake.NewClientBuilder().WithScheme(newScheme()).WithObjects(
			&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "kube-system"}},
			existing,
		).Build()
		a := NewAccess(c)

		require.NoError(t, a.EnsureServiceAccount(context.Background(), "kube-system", "aws-node", map[string]string{roleAnnotation: "new"}))

		sa := &corev1.ServiceAccount{}
		require.NoError(t, c.Get(context.Background(), client.ObjectKey{Namespace: "kube-system", Name: "aws-node"}, sa))
		assert.Equal(t, "me", sa.Annotations["keep"])
		assert.Equal(t, "new", sa.Annotations[roleAnnotation])
	})
}
