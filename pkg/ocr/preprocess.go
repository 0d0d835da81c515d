package ocr

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Preprocess converts img to grayscale, scales it by factor and binarizes it
// with an Otsu threshold in inverted polarity: pixels brighter than the
// threshold become black, the rest white.
func Preprocess(img image.Image, factor float64) *image.Gray {
	src := imaging.Grayscale(img)
	if factor > 0 && factor != 1 {
		w := int(math.Round(float64(src.Bounds().Dx()) * factor))
		h := int(math.Round(float64(src.Bounds().Dy()) * factor))
		src = imaging.Resize(src, w, h, imaging.Linear)
	}
	gray := toGray(src)
	return binarizeInv(gray, OtsuThreshold(gray))
}

// toGray copies the luminance channel of an already grayscale NRGBA image.
func toGray(img *image.NRGBA) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		for x := 0; x < b.Dx(); x++ {
			out.Pix[y*out.Stride+x] = row[x*4]
		}
	}
	return out
}

// OtsuThreshold picks the global threshold maximizing between-class variance.
// Pixels <= threshold form the dark class.
func OtsuThreshold(g *image.Gray) uint8 {
	var hist [256]int
	b := g.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for _, v := range g.Pix[y*g.Stride : y*g.Stride+b.Dx()] {
			hist[v]++
		}
	}
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}
	var sum float64
	for i, n := range hist {
		sum += float64(i * n)
	}
	var (
		sumDark  float64
		wDark    int
		best     float64
		bestT    uint8
		foundAny bool
	)
	for t := 0; t < 256; t++ {
		wDark += hist[t]
		if wDark == 0 {
			continue
		}
		wLight := total - wDark
		if wLight == 0 {
			break
		}
		sumDark += float64(t * hist[t])
		mDark := sumDark / float64(wDark)
		mLight := (sum - sumDark) / float64(wLight)
		between := float64(wDark) * float64(wLight) * (mDark - mLight) * (mDark - mLight)
		if !foundAny || between > best {
			best, bestT, foundAny = between, uint8(t), true
		}
	}
	return bestT
}

// binarizeInv maps pixels above threshold to 0 and the rest to 255.
func binarizeInv(g *image.Gray, threshold uint8) *image.Gray {
	out := image.NewGray(g.Bounds())
	for i, v := range g.Pix {
		if v > threshold {
			out.Pix[i] = 0
		} else {
			out.Pix[i] = 255
		}
	}
	return out
}
