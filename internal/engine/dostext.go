package engine

import (
	"appleport/internal/medium"
	"appleport/internal/plan"
)

// hfsTEXT is the HFS file type of a plain text document.
const hfsTEXT = 0x54455854

// prodosTXT is the ProDOS TXT file type.
const prodosTXT = 0x04

// isTextFile reports whether an item's typed metadata marks it as text.
func isTextFile(a medium.Attributes) bool {
	return a.ProType == prodosTXT || a.HFSType == hfsTEXT
}

// textTransform returns the in-flight byte rewrite a data fork needs when
// crossing a DOS 3.3 boundary, or nil. DOS stores text with the high bit
// set on every character; everything else stores it clear. The rewrite
// applies only to data forks of files typed as text, never to container
// payloads or resource forks.
func (x *exec) textTransform(it *plan.Item) func([]byte) {
	if it.Fork != medium.DataFork || it.Encode != plan.EncodeNone {
		return nil
	}
	if !isTextFile(it.Attrs) {
		return nil
	}
	srcDOS := !it.Src.IsZero() && it.Src.Characteristics().DOSText
	dstDOS := x.chars.DOSText
	switch {
	case srcDOS && !dstDOS:
		return clearHighBits
	case !srcDOS && dstDOS:
		return setHighBits
	default:
		return nil
	}
}

func clearHighBits(p []byte) {
	for i := range p {
		p[i] &= 0x7F
	}
}

// setHighBits sets the high bit of every nonzero byte; zeros stay zero so
// sparse-file padding is not turned into characters.
func setHighBits(p []byte) {
	for i := range p {
		if p[i] != 0 {
			p[i] |= 0x80
		}
	}
}
