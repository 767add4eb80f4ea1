package main

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"log/slog"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/skip2/go-qrcode"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQRScannerCleanImage(t *testing.T) {
	png, err := qrcode.Encode("5U42", qrcode.Medium, 400)
	if err != nil {
		t.Fatal(err)
	}

	got := NewQRScanner(testLogger()).Decode(png)
	if got != "5U42" {
		t.Errorf("Decode(clean QR) = %q, want %q", got, "5U42")
	}
}

func TestQRScannerSmallImageUpscaled(t *testing.T) {
	// Below the minimum detection size, forcing the upscale path.
	png, err := qrcode.Encode("5U42", qrcode.Medium, 128)
	if err != nil {
		t.Fatal(err)
	}

	got := NewQRScanner(testLogger()).Decode(png)
	if got != "5U42" {
		t.Errorf("Decode(small QR) = %q, want %q", got, "5U42")
	}
}

func TestQRScannerBlurredImage(t *testing.T) {
	png, err := qrcode.Encode("5U42", qrcode.Medium, 400)
	if err != nil {
		t.Fatal(err)
	}
	src, err := imaging.Decode(bytes.NewReader(png))
	if err != nil {
		t.Fatal(err)
	}
	blurred := imaging.Blur(src, 2)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, blurred, imaging.PNG); err != nil {
		t.Fatal(err)
	}

	got := NewQRScanner(testLogger()).Decode(buf.Bytes())
	if got != "5U42" {
		t.Errorf("Decode(blurred QR) = %q, want %q", got, "5U42")
	}
}

func TestQRScannerInvertedImage(t *testing.T) {
	png, err := qrcode.Encode("7U9", qrcode.Medium, 400)
	if err != nil {
		t.Fatal(err)
	}
	src, err := imaging.Decode(bytes.NewReader(png))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Invert(src), imaging.PNG); err != nil {
		t.Fatal(err)
	}

	got := NewQRScanner(testLogger()).Decode(buf.Bytes())
	if got != "7U9" {
		t.Errorf("Decode(inverted QR) = %q, want %q", got, "7U9")
	}
}

func TestQRScannerNoQR(t *testing.T) {
	// A plain gradient contains no symbol on any variant.
	img := image.NewRGBA(image.Rect(0, 0, 400, 400))
	for y := 0; y < 400; y++ {
		for x := 0; x < 400; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatal(err)
	}

	if got := NewQRScanner(testLogger()).Decode(buf.Bytes()); got != "" {
		t.Errorf("Decode(gradient) = %q, want empty", got)
	}
}

func TestQRScannerGarbageBytes(t *testing.T) {
	if got := NewQRScanner(testLogger()).Decode([]byte("not an image")); got != "" {
		t.Errorf("Decode(garbage) = %q, want empty", got)
	}
}
