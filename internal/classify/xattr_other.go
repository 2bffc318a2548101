//go:build !darwin && !linux

package classify

// probeHostAttrs is a no-op on hosts without an extended-attribute probe.
func (c *Classifier) probeHostAttrs(_ *Record) {}
