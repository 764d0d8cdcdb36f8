// services/frame-poller/pkg/shard/shard_test.go
package shard

import (
	"context"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		a       Assignment
		wantErr bool
	}{
		{Single, false},
		{Assignment{WorkerID: 2, NumWorkers: 3}, false},
		{Assignment{WorkerID: 3, NumWorkers: 3}, true},
		{Assignment{WorkerID: -1, NumWorkers: 3}, true},
		{Assignment{WorkerID: 0, NumWorkers: 0}, true},
	}
	for _, tc := range tests {
		if err := tc.a.Validate(); (err != nil) != tc.wantErr {
			t.Errorf("Validate(%v) = %v; wantErr=%v", tc.a, err, tc.wantErr)
		}
	}
}

func TestOwns_Filter(t *testing.T) {
	a := Assignment{WorkerID: 1, NumWorkers: 3}
	var got []int64
	for i := int64(0); i < 6; i++ {
		if a.Owns(i) {
			got = append(got, i)
		}
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 4 {
		t.Fatalf("got %v, want [1 4]", got)
	}
}

func TestOwns_Partition(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7} {
		workers := All(n)
		for idx := int64(-50); idx < 50; idx++ {
			owners := 0
			for _, w := range workers {
				if w.Owns(idx) {
					owners++
				}
			}
			if owners != 1 {
				t.Fatalf("n=%d idx=%d: %d owners", n, idx, owners)
			}
		}
	}
	if !(Assignment{WorkerID: 2, NumWorkers: 3}).Owns(-1) {
		t.Fatal("-1 must belong to worker 2 of 3")
	}
}

func TestContext(t *testing.T) {
	if got := FromContext(context.Background()); got != Single {
		t.Fatalf("default = %v", got)
	}
	a := Assignment{WorkerID: 1, NumWorkers: 4}
	if got := FromContext(WithAssignment(context.Background(), a)); got != a {
		t.Fatalf("got %v, want %v", got, a)
	}
}
