package sensors

import "iter"

// Split divides a post-header payload into sub-reports.
//
// The group, and therefore the chunk width, is taken from the first byte
// only: every sub-report in one notification is assumed to share it. A
// notification mixing groups would be split at the wrong offsets. The last
// chunk is yielded as-is even when shorter than the width, so decoders must
// check lengths. Payloads whose first id is unknown or whose group has no
// fixed width are yielded whole.
//
// The sequence is lazy and may be ranged over any number of times.
func (r *Registry) Split(payload []byte) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		if len(payload) == 0 {
			return
		}
		width := 0
		if def, ok := r.Lookup(payload[0]); ok {
			if w, fixed := def.Group.Width(); fixed {
				width = w
			}
		}
		if width == 0 {
			yield(payload)
			return
		}
		for i := 0; i < len(payload); i += width {
			end := min(i+width, len(payload))
			if !yield(payload[i:end:end]) {
				return
			}
		}
	}
}
