package engine

import (
	"fmt"
	"hash"
	"io"

	"github.com/zeebo/blake3"

	"appleport/internal/medium"
)

// newDigest returns a BLAKE3 hasher when verification is on, nil otherwise.
func newDigest(verify bool) hash.Hash {
	if !verify {
		return nil
	}
	return blake3.New()
}

// verifyFork re-reads a just-committed fork and compares its digest to the
// digest of the bytes that were written. A mismatch means the destination
// medium corrupted the fork on the way in or out.
func (x *exec) verifyFork(ep medium.Endpoint, e medium.Entry, fork medium.Fork, want [32]byte) error {
	r, err := ep.OpenFork(e, fork)
	if err != nil {
		return fmt.Errorf("verify %s fork: reopen: %w", fork, err)
	}
	defer r.Close()

	h := blake3.New()
	if _, err := io.CopyBuffer(h, r, x.buf); err != nil {
		return fmt.Errorf("verify %s fork: reread: %w", fork, err)
	}
	var got [32]byte
	copy(got[:], h.Sum(nil))
	if got != want {
		return fmt.Errorf("verify %s fork: digest mismatch after write", fork)
	}
	return nil
}
