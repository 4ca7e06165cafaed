package dht

import "testing"

func TestRoutingTable_AddAndSize(t *testing.T) {
	self := testIdentifier(0)
	rt := NewRoutingTable(self, 20)
	rt.AddNode(Node{ID: testIdentifier(1)})
	rt.AddNode(Node{ID: testIdentifier(2)})
	if rt.Size() != 2 {
		t.Fatalf("got size %d, want 2", rt.Size())
	}
}

func TestRoutingTable_SelfInsertFiltered(t *testing.T) {
	self := testIdentifier(0)
	rt := NewRoutingTable(self, 20)
	rt.AddNode(Node{ID: self})
	if rt.Size() != 0 {
		t.Fatalf("self-insert should be filtered, got size %d", rt.Size())
	}
}

func TestRoutingTable_RemoveNode(t *testing.T) {
	self := testIdentifier(0)
	rt := NewRoutingTable(self, 20)
	n := Node{ID: testIdentifier(1)}
	rt.AddNode(n)
	if !rt.RemoveNode(n.ID) {
		t.Fatal("expected RemoveNode to report true")
	}
	if rt.Size() != 0 {
		t.Fatalf("got size %d, want 0", rt.Size())
	}
	if rt.RemoveNode(self) {
		t.Fatal("RemoveNode of self should be a no-op reporting false")
	}
}

func TestRoutingTable_FindNeighbors_OrderedByDistance(t *testing.T) {
	self := testIdentifier(0)
	rt := NewRoutingTable(self, 20)

	target := testIdentifier(100)
	var near, mid, far Identifier
	copy(near[:], target[:])
	near[IDLen-1] ^= 0x01 // distance 1
	copy(mid[:], target[:])
	mid[IDLen-1] ^= 0x03 // distance 3
	copy(far[:], target[:])
	far[0] ^= 0x80 // large distance

	rt.AddNode(Node{ID: far})
	rt.AddNode(Node{ID: mid})
	rt.AddNode(Node{ID: near})

	got := rt.FindNeighbors(target)
	if len(got) != 3 {
		t.Fatalf("got %d neighbors, want 3", len(got))
	}
	if got[0].ID != near || got[1].ID != mid || got[2].ID != far {
		t.Fatalf("neighbors not sorted by distance: %+v", got)
	}
}

func TestRoutingTable_FindNeighbors_CapsAtKsize(t *testing.T) {
	self := testIdentifier(0)
	rt := NewRoutingTable(self, 2)
	// Spread ids across distinct buckets by varying the top bits so each
	// lands in its own bucket and survives independently of the per-bucket
	// capacity test below.
	rt.AddNode(Node{ID: func() Identifier { id := testIdentifier(1); id[0] = 0x01; return id }()})
	rt.AddNode(Node{ID: func() Identifier { id := testIdentifier(2); id[0] = 0x02; return id }()})
	rt.AddNode(Node{ID: func() Identifier { id := testIdentifier(3); id[0] = 0x04; return id }()})

	got := rt.FindNeighbors(testIdentifier(0))
	if len(got) > 2 {
		t.Fatalf("got %d neighbors, want at most ksize=2", len(got))
	}
}

func TestRoutingTable_BucketLen_RespectsCapacity(t *testing.T) {
	self := testIdentifier(0)
	rt := NewRoutingTable(self, 2)
	// All three share self's top bits after XOR-ing only the low byte, so
	// they land in the same bucket (same common-prefix length with self).
	var a, b, c Identifier
	a[IDLen-1] = 0x01
	b[IDLen-1] = 0x02
	c[IDLen-1] = 0x03
	rt.AddNode(Node{ID: a})
	rt.AddNode(Node{ID: b})
	rt.AddNode(Node{ID: c}) // bucket full at ksize=2: dropped

	if got := rt.BucketLen(a); got != 2 {
		t.Fatalf("got bucket len %d, want 2", got)
	}
}
