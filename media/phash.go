package media

import (
	"fmt"
	"image/color"

	"github.com/disintegration/imaging"
)

// PerceptualHash computes an 8x8 average hash of the image, returned as a
// 16-character hex string. Visually similar images (resizes, recompressed
// copies) produce hashes within a small Hamming distance.
func PerceptualHash(path string) (string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("phash: failed to open image %s: %w", path, err)
	}

	small := imaging.Resize(imaging.Grayscale(img), 8, 8, imaging.Lanczos)

	var pixels [64]uint8
	var sum int
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			gray := color.GrayModel.Convert(small.At(x, y)).(color.Gray)
			pixels[y*8+x] = gray.Y
			sum += int(gray.Y)
		}
	}
	mean := uint8(sum / 64)

	var hash uint64
	for i, p := range pixels {
		if p > mean {
			hash |= 1 << uint(63-i)
		}
	}
	return fmt.Sprintf("%016x", hash), nil
}

// HammingDistance counts differing bits between two hex hashes produced by
// PerceptualHash. Returns -1 when either hash is malformed.
func HammingDistance(a, b string) int {
	var ha, hb uint64
	if _, err := fmt.Sscanf(a, "%x", &ha); err != nil {
		return -1
	}
	if _, err := fmt.Sscanf(b, "%x", &hb); err != nil {
		return -1
	}
	diff := ha ^ hb
	count := 0
	for diff != 0 {
		count += int(diff & 1)
		diff >>= 1
	}
	return count
}
