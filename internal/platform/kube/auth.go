package kube

import (
	"context"
	"fmt"
	"slices"
	"strings"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	kretry "k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/yaml"

	"github.com/imamik/eksforge/internal/provisioning"
)

// The authenticator reads role mappings from this ConfigMap.
const (
	AuthNamespace = "kube-system"
	AuthConfigMap = "aws-auth"
	mapRolesKey   = "mapRoles"
)

// roleEntry is one element of the mapRoles document.
type roleEntry struct {
	RoleARN  string   `json:"rolearn"`
	Username string   `json:"username"`
	Groups   []string `json:"groups,omitempty"`
}

// UpsertRoleMapping implements provisioning.ClusterAccess. Entries for
// other roles are preserved. The write is retried on update conflicts and
// when the ConfigMap appears between the read and the create, as it does
// when the control plane writes its own aws-auth.
func (a *Access) UpsertRoleMapping(ctx context.Context, mapping provisioning.RoleMapping) error {
	if mapping.RoleARN == "" {
		return fmt.Errorf("role mapping needs a role ARN")
	}
	want := roleEntry{RoleARN: mapping.RoleARN, Username: mapping.Username, Groups: mapping.Groups}

	err := kretry.OnError(kretry.DefaultRetry, retriableWrite, func() error {
		cm := &corev1.ConfigMap{}
		err := a.client.Get(ctx, client.ObjectKey{Namespace: AuthNamespace, Name: AuthConfigMap}, cm)
		if apierrors.IsNotFound(err) {
			data, err := encodeRoles([]roleEntry{want})
			if err != nil {
				return err
			}
			cm = &corev1.ConfigMap{
				ObjectMeta: metav1.ObjectMeta{Namespace: AuthNamespace, Name: AuthConfigMap},
				Data:       map[string]string{mapRolesKey: data},
			}
			return a.client.Create(ctx, cm)
		}
		if err != nil {
			return err
		}

		entries, err := decodeRoles(cm.Data[mapRolesKey])
		if err != nil {
			return err
		}
		entries, changed := upsertRole(entries, want)
		if !changed {
			return nil
		}
		data, err := encodeRoles(entries)
		if err != nil {
			return err
		}
		if cm.Data == nil {
			cm.Data = map[string]string{}
		}
		cm.Data[mapRolesKey] = data
		return a.client.Update(ctx, cm)
	})
	if err != nil {
		return fmt.Errorf("failed to map role %s: %w", mapping.RoleARN, err)
	}
	return nil
}

func retriableWrite(err error) bool {
	return apierrors.IsConflict(err) || apierrors.IsAlreadyExists(err)
}

// RoleMappings returns the mappings currently stored in the cluster.
func (a *Access) RoleMappings(ctx context.Context) ([]provisioning.RoleMapping, error) {
	cm := &corev1.ConfigMap{}
	err := a.client.Get(ctx, client.ObjectKey{Namespace: AuthNamespace, Name: AuthConfigMap}, cm)
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entries, err := decodeRoles(cm.Data[mapRolesKey])
	if err != nil {
		return nil, err
	}
	out := make([]provisioning.RoleMapping, len(entries))
	for i, e := range entries {
		out[i] = provisioning.RoleMapping{RoleARN: e.RoleARN, Username: e.Username, Groups: e.Groups}
	}
	return out, nil
}

func decodeRoles(data string) ([]roleEntry, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	var entries []roleEntry
	if err := yaml.Unmarshal([]byte(data), &entries); err != nil {
		return nil, fmt.Errorf("failed to parse %s/%s %s: %w", AuthNamespace, AuthConfigMap, mapRolesKey, err)
	}
	return entries, nil
}

func encodeRoles(entries []roleEntry) (string, error) {
	data, err := yaml.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", mapRolesKey, err)
	}
	return string(data), nil
}

// upsertRole replaces the entry for want.RoleARN or appends it.
func upsertRole(entries []roleEntry, want roleEntry) ([]roleEntry, bool) {
	for i, e := range entries {
		if e.RoleARN != want.RoleARN {
			continue
		}
		if e.Username == want.Username && slices.Equal(e.Groups, want.Groups) {
			return entries, false
		}
		out := slices.Clone(entries)
		out[i] = want
		return out, true
	}
	return append(slices.Clone(entries), want), true
}
