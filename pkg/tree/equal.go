package tree

// Equal reports whether two decrypted trees are structurally identical:
// same node kinds, same map key order, same sequence order, and equal
// leaf values. Used by File.SetMap to decide whether a replacement map
// actually changed the plaintext, per the no-timestamp-noise rule.
func Equal(a, b *DecryptedTree) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case KindSequence:
		as, bs := a.Sequence(), b.Sequence()
		if len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !Equal(as[i], bs[i]) {
				return false
			}
		}
		return true

	case KindMap:
		ap, bp := a.Map().Oldest(), b.Map().Oldest()
		for ap != nil && bp != nil {
			if ap.Key != bp.Key || !Equal(ap.Value, bp.Value) {
				return false
			}
			ap, bp = ap.Next(), bp.Next()
		}
		return ap == nil && bp == nil

	case KindNull:
		return true

	default: // KindLeaf
		return a.Leaf().Equal(b.Leaf())
	}
}
