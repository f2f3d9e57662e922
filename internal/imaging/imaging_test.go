package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func checker(w, h int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(200)
			if x < w/2 {
				v = 40
			}
			g.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return g
}

func TestDecodePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, checker(8, 4)); err != nil {
		t.Fatal(err)
	}
	if !IsImage(buf.Bytes()) {
		t.Fatalf("IsImage(png) = false")
	}

	img, format, err := DecodeBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeBytes() error = %v", err)
	}
	if format != "png" || img.Bounds().Dx() != 8 {
		t.Errorf("DecodeBytes() = %s %v", format, img.Bounds())
	}
}

func TestDecodeRejectsPDF(t *testing.T) {
	data := []byte("%PDF-1.7\n%âãÏÓ\n")
	if IsImage(data) {
		t.Errorf("IsImage(pdf) = true")
	}
	if _, _, err := DecodeBytes(data); !errors.Is(err, ErrUnsupportedImage) {
		t.Errorf("DecodeBytes(pdf) error = %v, want ErrUnsupportedImage", err)
	}
}

func TestFitToDPI(t *testing.T) {
	img := checker(100, 200)

	// A4-ish page of 72x144 points at 100 dpi is 100x200 pixels already
	if got := FitToDPI(img, 72, 144, 100); got != image.Image(img) {
		t.Errorf("FitToDPI() rescaled an image already at target size")
	}

	got := FitToDPI(img, 72, 144, 300)
	if b := got.Bounds(); b.Dx() != 300 || b.Dy() != 600 {
		t.Errorf("FitToDPI() bounds = %v, want 300x600", b)
	}
}

func TestPageSizeAt(t *testing.T) {
	w, h := PageSizeAt(checker(300, 600), 300)
	if w != 72 || h != 144 {
		t.Errorf("PageSizeAt() = %v x %v, want 72 x 144", w, h)
	}
}

func TestApplyProfilesBinarise(t *testing.T) {
	src := checker(40, 20)
	for _, profile := range []string{ProfileStandard, ProfileAggressive} {
		t.Run(profile, func(t *testing.T) {
			out, ok := Apply(src, profile).(*image.Gray)
			if !ok {
				t.Fatalf("Apply() did not return *image.Gray")
			}
			for _, v := range out.Pix {
				if v != 0 && v != 255 {
					t.Fatalf("pixel %d is not binary", v)
				}
			}
			// either side of the edge between the halves
			if out.GrayAt(18, 10).Y != 0 || out.GrayAt(21, 10).Y != 255 {
				t.Errorf("dark / light side = %d / %d, want 0 / 255", out.GrayAt(18, 10).Y, out.GrayAt(21, 10).Y)
			}
		})
	}
}

func TestApplyMinimalStretches(t *testing.T) {
	out := Apply(checker(10, 10), ProfileMinimal).(*image.Gray)
	if out.GrayAt(0, 0).Y != 0 || out.GrayAt(9, 9).Y != 255 {
		t.Errorf("stretch = %d..%d, want 0..255", out.GrayAt(0, 0).Y, out.GrayAt(9, 9).Y)
	}
}

func TestOtsuSplitsBimodal(t *testing.T) {
	th := Otsu(checker(20, 20))
	if th < 40 || th >= 200 {
		t.Errorf("Otsu() = %d, want within [40, 200)", th)
	}
}
