package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func solidImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, c)
		}
	}
	return img
}

func mustEncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func mustEncodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		maxSize       int
		wantW, wantH  int
	}{
		{"inside box", 100, 80, 800, 100, 80},
		{"on the edge", 800, 600, 800, 800, 600},
		{"landscape", 1600, 1200, 800, 800, 600},
		{"portrait", 900, 1800, 800, 400, 800},
		{"thin strip keeps a pixel", 4000, 2, 800, 800, 1},
		{"no limit", 5000, 5000, 0, 5000, 5000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := fitWithin(tt.width, tt.height, tt.maxSize)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("fitWithin(%d, %d, %d) = %dx%d, want %dx%d",
					tt.width, tt.height, tt.maxSize, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestPrepareImage_Downscales(t *testing.T) {
	data := mustEncodeJPEG(t, solidImage(1200, 600, color.Gray{Y: 128}))

	out, err := PrepareImage(data, 400)
	if err != nil {
		t.Fatalf("PrepareImage failed: %v", err)
	}
	img, format, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("expected jpeg, got %s", format)
	}
	if b := img.Bounds(); b.Dx() != 400 || b.Dy() != 200 {
		t.Errorf("expected 400x200, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestPrepareImage_FlattensTransparency(t *testing.T) {
	data := mustEncodePNG(t, solidImage(20, 20, color.RGBA{}))

	out, err := PrepareImage(data, 800)
	if err != nil {
		t.Fatalf("PrepareImage failed: %v", err)
	}
	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 20 || b.Dy() != 20 {
		t.Errorf("small image should keep its size, got %dx%d", b.Dx(), b.Dy())
	}
	r, g, b, _ := img.At(10, 10).RGBA()
	if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
		t.Errorf("transparent pixel should become white, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
}

func TestPrepareImage_InvalidData(t *testing.T) {
	for _, data := range [][]byte{[]byte("not an image"), {}} {
		if _, err := PrepareImage(data, 800); err == nil {
			t.Errorf("expected error for %q", data)
		}
	}
}
