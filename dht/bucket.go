package dht

// kBucket is an ordered sequence of up to ksize nodes, oldest-first (§3).
// It does not itself know its distance range; RoutingTable indexes buckets
// by common-prefix length.
type kBucket struct {
	ksize   int
	entries []Node
}

func newKBucket(ksize int) *kBucket {
	return &kBucket{ksize: ksize, entries: make([]Node, 0, ksize)}
}

// indexOf returns the position of id in the bucket, or -1.
func (kb *kBucket) indexOf(id Identifier) int {
	for i, n := range kb.entries {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// add implements §4.4's addNode bucket-level behavior: move-to-tail if
// present, append if there is room, otherwise silently drop the newcomer
// (the source's conservative bucket-full policy — §4.4, §9 "Bucket-full
// policy" — no liveness probe of the oldest entry is performed).
func (kb *kBucket) add(n Node) {
	if i := kb.indexOf(n.ID); i >= 0 {
		kb.entries = append(kb.entries[:i], kb.entries[i+1:]...)
		kb.entries = append(kb.entries, n)
		return
	}
	if len(kb.entries) < kb.ksize {
		kb.entries = append(kb.entries, n)
		return
	}
	// Bucket full: drop newcomer.
}

func (kb *kBucket) remove(id Identifier) bool {
	if i := kb.indexOf(id); i >= 0 {
		kb.entries = append(kb.entries[:i], kb.entries[i+1:]...)
		return true
	}
	return false
}

func (kb *kBucket) len() int {
	return len(kb.entries)
}

func (kb *kBucket) nodes() []Node {
	out := make([]Node, len(kb.entries))
	copy(out, kb.entries)
	return out
}
