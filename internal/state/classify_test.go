package state

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	prev := NewRecord("demo")
	prev.Put(Resource{ID: "network/vpc", Kind: "network", Fingerprint: "n1", Status: StatusReady})
	prev.Put(Resource{ID: "cluster/demo", Kind: "cluster", Fingerprint: "c1", Status: StatusReady})
	prev.Put(Resource{ID: "chart/kube-system/lb", Kind: "chart", Fingerprint: "h1", Status: "failed"})
	prev.Put(Resource{ID: "nodepool/old", Kind: "nodepool", Fingerprint: "p0", Status: StatusReady})

	desired := []Desired{
		{ID: "network/vpc", Kind: "network", Fingerprint: "n1"},
		{ID: "cluster/demo", Kind: "cluster", Fingerprint: "c2"},
		{ID: "nodepool/general", Kind: "nodepool", Fingerprint: "p1"},
		{ID: "chart/kube-system/lb", Kind: "chart", Fingerprint: "h1"},
	}

	want := []Change{
		{ID: "network/vpc", Kind: "network", Action: ActionUnchanged, Previous: "n1", Current: "n1"},
		{ID: "cluster/demo", Kind: "cluster", Action: ActionUpdate, Previous: "c1", Current: "c2"},
		{ID: "nodepool/general", Kind: "nodepool", Action: ActionCreate, Current: "p1"},
		{ID: "chart/kube-system/lb", Kind: "chart", Action: ActionUpdate, Previous: "h1", Current: "h1"},
		{ID: "nodepool/old", Kind: "nodepool", Action: ActionOrphaned, Previous: "p0"},
	}
	got := Classify(prev, desired)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
	}

	if n := Count(got, ActionUpdate); n != 2 {
		t.Errorf("Count(update) = %d, want 2", n)
	}
}

func TestClassify_NoPreviousState(t *testing.T) {
	t.Parallel()
	got := Classify(nil, []Desired{{ID: "network/vpc", Kind: "network", Fingerprint: "n1"}})
	want := []Change{{ID: "network/vpc", Kind: "network", Action: ActionCreate, Current: "n1"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
	}
}
