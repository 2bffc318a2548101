package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"appleport/internal/event"
)

// promptExists asks what to do about an existing destination entry. The
// "all" answers promote themselves into the policy so the question is not
// asked again for the rest of the batch.
func promptExists(in io.Reader, out io.Writer, path string, policy *OverwritePolicy) event.Result {
	r := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s exists: [o]verwrite, [s]kip, overwrite [a]ll, [n]one, [c]ancel? ", path)
		line, err := r.ReadString('\n')
		if err != nil {
			return event.Cancel
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "o", "overwrite":
			return event.Overwrite
		case "s", "skip", "":
			return event.Skip
		case "a", "all":
			*policy = OverwriteAlways
			return event.Overwrite
		case "n", "none":
			*policy = OverwriteNever
			return event.Skip
		case "c", "cancel", "q":
			return event.Cancel
		}
	}
}
