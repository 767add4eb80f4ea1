package main

import (
	"bytes"
	"image"
	"log/slog"

	"github.com/disintegration/gift"
	"github.com/disintegration/imaging"
	"github.com/makiuchi-d/gozxing"
	zxqrcode "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/skip2/go-qrcode"
)

const (
	// minDecodeSize is the smallest dimension at which symbol detection is
	// still reliable; smaller photos are upscaled first.
	minDecodeSize = 300
	// upscaleShortSide is the target short side after upscaling.
	upscaleShortSide = 600
)

// RenderCredentialQR encodes a credential token into a PNG QR image.
func RenderCredentialQR(token string) ([]byte, error) {
	return qrcode.Encode(token, qrcode.Medium, 512)
}

// QRScanner recovers a credential token from an arbitrary photograph of a
// QR code. Several image-processing variants are tried over the same frame;
// per-variant failures are swallowed and logged, never propagated.
type QRScanner struct {
	log *slog.Logger
}

// NewQRScanner creates a QRScanner.
func NewQRScanner(log *slog.Logger) *QRScanner {
	return &QRScanner{log: log}
}

// Decode returns the token read from the image bytes, or "" when no variant
// could recover one. It never panics outward.
func (s *QRScanner) Decode(data []byte) string {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		s.log.Debug("qr: image decode failed", errAttr(err))
		return ""
	}

	img := upscaleSmall(src)

	variants := []struct {
		name string
		img  image.Image
	}{
		{"original", img},
		{"grayscale", imaging.Grayscale(img)},
		{"brightness", imaging.AdjustBrightness(img, 40)},
		{"contrast", imaging.AdjustContrast(img, 60)},
		{"blur", imaging.Blur(img, 1.5)},
		{"median", medianFilter(img, 3)},
		{"threshold", adaptiveThreshold(img, 11, 2)},
	}

	// Majority vote across successful variants guards against a single
	// noisy variant producing a spurious but different reading. Ties go to
	// the reading seen first in variant order.
	counts := make(map[string]int)
	var order []string
	for _, v := range variants {
		text := decodeSymbol(v.img)
		if text == "" {
			continue
		}
		s.log.Debug("qr: variant decoded", slog.String("variant", v.name))
		if _, seen := counts[text]; !seen {
			order = append(order, text)
		}
		counts[text]++
	}
	if len(order) > 0 {
		best := order[0]
		for _, text := range order[1:] {
			if counts[text] > counts[best] {
				best = text
			}
		}
		return best
	}

	if text := decodeSymbol(imaging.Invert(img)); text != "" {
		s.log.Debug("qr: inverted frame decoded")
		return text
	}

	// Last-resort pass over the unscaled source frame: first success wins,
	// trading the vote's determinism for maximum recall.
	return s.decodeEnhanced(src)
}

// decodeEnhanced runs a second set of more aggressive transforms and returns
// the first reading that decodes.
func (s *QRScanner) decodeEnhanced(src image.Image) string {
	b := src.Bounds()
	variants := []struct {
		name string
		img  image.Image
	}{
		{"contrast", imaging.AdjustContrast(src, 50)},
		{"sharpen", imaging.Sharpen(src, 3)},
		{"grayscale contrast", imaging.AdjustContrast(imaging.Grayscale(src), 80)},
		{"invert", imaging.Invert(src)},
		{"upscale", imaging.Resize(src, b.Dx()*2, b.Dy()*2, imaging.Lanczos)},
		{"autocontrast", autoContrast(src, 2)},
	}
	for _, v := range variants {
		if text := decodeSymbol(v.img); text != "" {
			s.log.Debug("qr: enhanced variant decoded", slog.String("variant", v.name))
			return text
		}
	}

	combined := imaging.Resize(src, b.Dx()*2, b.Dy()*2, imaging.Lanczos)
	combined = imaging.Sharpen(autoContrast(combined, 5), 3)
	if text := decodeSymbol(combined); text != "" {
		s.log.Debug("qr: combined enhanced variant decoded")
		return text
	}
	return ""
}

// decodeSymbol attempts one QR detection+decode on a single frame.
func decodeSymbol(img image.Image) string {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return ""
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	result, err := zxqrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil || result == nil {
		return ""
	}
	return result.GetText()
}

// upscaleSmall enlarges images below minDecodeSize so the short side reaches
// at least upscaleShortSide, preserving aspect ratio.
func upscaleSmall(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w >= minDecodeSize && h >= minDecodeSize {
		return img
	}
	short := w
	if h < short {
		short = h
	}
	if short == 0 {
		return img
	}
	factor := (upscaleShortSide + short - 1) / short
	return imaging.Resize(img, w*factor, h*factor, imaging.Lanczos)
}

// medianFilter removes salt-and-pepper noise with a median window.
func medianFilter(img image.Image, ksize int) image.Image {
	g := gift.New(gift.Median(ksize, true))
	dst := image.NewRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return dst
}

// adaptiveThreshold binarizes against the local mean over a block window
// minus a constant offset. Neither imaging nor gift ships an adaptive
// threshold, only global ones, so the window sums are computed here via an
// integral image.
func adaptiveThreshold(img image.Image, block, offset int) image.Image {
	gray := imaging.Grayscale(img)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return gray
	}

	integral := make([]int, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		rowSum := 0
		for x := 0; x < w; x++ {
			rowSum += int(gray.Pix[y*gray.Stride+x*4])
			integral[(y+1)*(w+1)+(x+1)] = integral[y*(w+1)+(x+1)] + rowSum
		}
	}

	half := block / 2
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0 := max(0, x-half), max(0, y-half)
			x1, y1 := min(w-1, x+half), min(h-1, y+half)
			area := (x1 - x0 + 1) * (y1 - y0 + 1)
			sum := integral[(y1+1)*(w+1)+(x1+1)] - integral[y0*(w+1)+(x1+1)] -
				integral[(y1+1)*(w+1)+x0] + integral[y0*(w+1)+x0]
			v := uint8(255)
			if int(gray.Pix[y*gray.Stride+x*4]) <= sum/area-offset {
				v = 0
			}
			out.Pix[y*out.Stride+x] = v
		}
	}
	return out
}

// autoContrast stretches each color channel's histogram to the full range,
// ignoring the given percentage of outliers at both ends.
func autoContrast(img image.Image, cutoff float64) image.Image {
	dst := imaging.Clone(img)
	b := dst.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return dst
	}
	for ch := 0; ch < 3; ch++ {
		var hist [256]int
		for i := ch; i < len(dst.Pix); i += 4 {
			hist[dst.Pix[i]]++
		}
		lo, hi := stretchBounds(&hist, total, cutoff)
		if lo >= hi {
			continue
		}
		scale := 255.0 / float64(hi-lo)
		var lut [256]uint8
		for v := 0; v < 256; v++ {
			s := (float64(v) - float64(lo)) * scale
			if s < 0 {
				s = 0
			}
			if s > 255 {
				s = 255
			}
			lut[v] = uint8(s)
		}
		for i := ch; i < len(dst.Pix); i += 4 {
			dst.Pix[i] = lut[dst.Pix[i]]
		}
	}
	return dst
}

func stretchBounds(hist *[256]int, total int, cutoff float64) (int, int) {
	drop := int(float64(total) * cutoff / 100)
	lo := 0
	for acc := 0; lo < 255; lo++ {
		acc += hist[lo]
		if acc > drop {
			break
		}
	}
	hi := 255
	for acc := 0; hi > 0; hi-- {
		acc += hist[hi]
		if acc > drop {
			break
		}
	}
	return lo, hi
}
