package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{200, 40, 40, 255})
		}
	}
	return img
}

func encodeJPEG(w, h int) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, solid(w, h), &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func encodePNG(w, h int) []byte {
	var buf bytes.Buffer
	png.Encode(&buf, solid(w, h))
	return buf.Bytes()
}

func TestProcessFormats(t *testing.T) {
	for name, data := range map[string][]byte{
		"jpeg": encodeJPEG(120, 80),
		"png":  encodePNG(120, 80),
	} {
		t.Run(name, func(t *testing.T) {
			photo, err := Process(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if photo.MIME != "image/jpeg" {
				t.Errorf("expected JPEG output, got %s", photo.MIME)
			}
			if photo.Width != 120 || photo.Height != 80 {
				t.Errorf("small photo should keep its size, got %dx%d", photo.Width, photo.Height)
			}
		})
	}
}

func TestProcessDownscales(t *testing.T) {
	photo, err := Process(bytes.NewReader(encodeJPEG(2560, 1280)))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(photo.Data))
	if err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if b := img.Bounds(); b.Dx() != MaxDimension || b.Dy() != MaxDimension/2 {
		t.Errorf("expected %dx%d, got %dx%d", MaxDimension, MaxDimension/2, b.Dx(), b.Dy())
	}
}

func TestProcessRejects(t *testing.T) {
	_, err := Process(bytes.NewReader([]byte("definitely not an image")))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}

	gif := []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")
	_, err = Process(bytes.NewReader(gif))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat for GIF, got %v", err)
	}

	_, err = Process(bytes.NewReader(make([]byte, MaxUploadBytes+10)))
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		w, h, limit  int
		wantW, wantH int
	}{
		{100, 50, 200, 100, 50},
		{400, 200, 200, 200, 100},
		{200, 400, 200, 100, 200},
		{1000, 1, 100, 100, 1},
		{300, 300, 100, 100, 100},
	}
	for _, tt := range tests {
		w, h := fit(tt.w, tt.h, tt.limit)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("fit(%d, %d, %d) = %dx%d, want %dx%d", tt.w, tt.h, tt.limit, w, h, tt.wantW, tt.wantH)
		}
	}
}
