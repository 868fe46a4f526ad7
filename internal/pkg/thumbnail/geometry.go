package thumbnail

import "math"

// cropSize returns the dimensions of the source sub-rectangle used by crop
// mode. The crop is symmetric: when the source is wider than the target
// aspect the width shrinks, otherwise the height shrinks.
func cropSize(srcW, srcH, dstW, dstH int) (int, int) {
	// source aspect > target aspect <=> srcW*dstH > srcH*dstW
	if srcW*dstH > srcH*dstW {
		cw := srcH * dstW / dstH
		if cw < 1 {
			cw = 1
		}
		return cw, srcH
	}
	ch := srcW * dstH / dstW
	if ch < 1 {
		ch = 1
	}
	return srcW, ch
}

// fitSize returns the scaled dimensions for fit mode: the whole source
// stays visible, aspect preserved, neither dimension above the target.
// Sources already inside the target box keep their size.
func fitSize(srcW, srcH, dstW, dstH int) (int, int) {
	ratio := math.Min(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))
	if ratio >= 1 {
		return srcW, srcH
	}
	w := int(math.Round(float64(srcW) * ratio))
	h := int(math.Round(float64(srcH) * ratio))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}
