package imaging

import (
	"image"
)

// Profile names, matching the OCR pass configuration
const (
	ProfileMinimal    = "minimal"
	ProfileStandard   = "standard"
	ProfileAggressive = "aggressive"
)

// Apply runs a preprocessing profile. Unknown profiles fall back to minimal.
//
//	minimal     grayscale with contrast stretch
//	standard    minimal plus local mean threshold
//	aggressive  minimal plus global Otsu threshold and a 3x3 closing
func Apply(img image.Image, profile string) image.Image {
	g := Stretch(Gray(img))
	switch profile {
	case ProfileStandard:
		return AdaptiveThreshold(g, 15, 10)
	case ProfileAggressive:
		return Close(Threshold(g, Otsu(g)))
	default:
		return g
	}
}

// Stretch linearly maps the 1st..99th intensity percentile onto 0..255
func Stretch(g *image.Gray) *image.Gray {
	hist := histogram(g)
	n := len(g.Pix)
	if n == 0 {
		return g
	}
	lo, hi := percentile(hist, n, 0.01), percentile(hist, n, 0.99)
	if hi <= lo {
		return g
	}
	out := image.NewGray(g.Rect)
	scale := 255.0 / float64(hi-lo)
	for i, v := range g.Pix {
		switch {
		case int(v) <= lo:
			out.Pix[i] = 0
		case int(v) >= hi:
			out.Pix[i] = 255
		default:
			out.Pix[i] = uint8(float64(int(v)-lo)*scale + 0.5)
		}
	}
	return out
}

// Otsu returns the global threshold maximising between-class variance
func Otsu(g *image.Gray) uint8 {
	hist := histogram(g)
	total := len(g.Pix)
	if total == 0 {
		return 128
	}
	var sum float64
	for i, c := range hist {
		sum += float64(i * c)
	}
	var sumB, best float64
	var wB int
	threshold := 0
	for t, c := range hist {
		wB += c
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * c)
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = t
		}
	}
	return uint8(threshold)
}

// Threshold binarises g: pixels above t become white, the rest black
func Threshold(g *image.Gray, t uint8) *image.Gray {
	out := image.NewGray(g.Rect)
	for i, v := range g.Pix {
		if v > t {
			out.Pix[i] = 255
		}
	}
	return out
}

// AdaptiveThreshold binarises each pixel against the mean of its
// (2*radius+1)^2 window minus offset, using an integral image.
func AdaptiveThreshold(g *image.Gray, radius, offset int) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(g.Rect)
	if w == 0 || h == 0 {
		return out
	}

	integral := make([]int64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var row int64
		for x := 0; x < w; x++ {
			row += int64(g.Pix[y*g.Stride+x])
			integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + row
		}
	}

	for y := 0; y < h; y++ {
		y0, y1 := max(0, y-radius), min(h, y+radius+1)
		for x := 0; x < w; x++ {
			x0, x1 := max(0, x-radius), min(w, x+radius+1)
			area := int64((x1 - x0) * (y1 - y0))
			sum := integral[y1*(w+1)+x1] - integral[y0*(w+1)+x1] - integral[y1*(w+1)+x0] + integral[y0*(w+1)+x0]
			if int64(g.Pix[y*g.Stride+x])*area > sum-int64(offset)*area {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// Close applies a 3x3 morphological closing on dark ink, filling pinholes in glyphs
func Close(g *image.Gray) *image.Gray {
	return morph(morph(g, false), true)
}

// morph shrinks the dark foreground over a 3x3 neighbourhood when erode is
// set (local maximum), otherwise grows it (local minimum).
func morph(g *image.Gray, erode bool) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(g.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := g.Pix[y*g.Stride+x]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					n := g.Pix[ny*g.Stride+nx]
					if !erode && n < v {
						v = n
					}
					if erode && n > v {
						v = n
					}
				}
			}
			out.Pix[y*out.Stride+x] = v
		}
	}
	return out
}

func histogram(g *image.Gray) [256]int {
	var hist [256]int
	w, h := g.Rect.Dx(), g.Rect.Dy()
	for y := 0; y < h; y++ {
		for _, v := range g.Pix[y*g.Stride : y*g.Stride+w] {
			hist[v]++
		}
	}
	return hist
}

func percentile(hist [256]int, total int, p float64) int {
	target := int(p * float64(total))
	acc := 0
	for i, c := range hist {
		acc += c
		if acc > target {
			return i
		}
	}
	return 255
}
