// Package detection runs the sandwich matcher over a pool's history in
// block windows and persists what it finds.
package detection

// Window is one detection chunk. Front-runs are accepted in [From, To]; legs
// are read up to ReadTo so that triplets crossing To are still complete.
type Window struct {
	From   int64
	To     int64
	ReadTo int64
}

// Windows splits [from, to] into consecutive windows of size blocks. Each
// window reads overlap blocks past its end, capped at to. Front ranges never
// overlap, so a triplet is matched in exactly one window as long as overlap
// is at least the matcher's block gap.
func Windows(from, to, size, overlap int64) []Window {
	if from > to || size <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}

	var out []Window
	for lo := from; lo <= to; lo += size {
		hi := lo + size - 1
		if hi > to || hi < lo {
			hi = to
		}
		read := hi + overlap
		if read > to || read < hi {
			read = to
		}
		out = append(out, Window{From: lo, To: hi, ReadTo: read})
		if hi == to {
			break
		}
	}
	return out
}
