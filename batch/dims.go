package batch

// DefaultSnap is the divisor latent dimensions are snapped to when the
// caller does not pick one.
const DefaultSnap = 64

// SnapDims conforms raw pixel dimensions to the backend's latent grid:
// round each to the nearest multiple of div, cap at maxW/maxH when those are
// positive, then floor back onto the grid so the caps are never exceeded.
// The result never drops below one grid cell.  A div of 1 or less only
// applies the caps.
func SnapDims(w, h, div, maxW, maxH int) (int, int) {
	if div > 1 {
		w = snap(w, div)
		h = snap(h, div)
	}
	w = clamp(w, maxW)
	h = clamp(h, maxH)
	if div > 1 {
		w = w / div * div
		h = h / div * div
	}
	floor := div
	if floor < 1 {
		floor = 1
	}
	if w < floor {
		w = floor
	}
	if h < floor {
		h = floor
	}
	return w, h
}

func snap(n, div int) int {
	v := (n + div/2) / div * div
	if v < div {
		return div
	}
	return v
}

func clamp(n, max int) int {
	if max > 0 && n > max {
		return max
	}
	return n
}
