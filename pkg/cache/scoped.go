package cache

// ScopedKeyer wraps a Keyer with a prefix for multi-tenant isolation.
// This is useful when several projects share one Redis instance.
//
// Example usage:
//
//	// Keys for one project
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "project:abc123:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// PartitionKey generates a prefixed partition key.
func (k *ScopedKeyer) PartitionKey(geometry string) string {
	return k.prefix + k.inner.PartitionKey(geometry)
}

// ResultKey generates a prefixed tile result key.
func (k *ScopedKeyer) ResultKey(fingerprint, tile string) string {
	return k.prefix + k.inner.ResultKey(fingerprint, tile)
}

// StitchKey generates a prefixed stitched output key.
func (k *ScopedKeyer) StitchKey(fingerprint string, opts StitchKeyOpts) string {
	return k.prefix + k.inner.StitchKey(fingerprint, opts)
}
