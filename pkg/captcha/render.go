package captcha

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
)

// segments lists the lit segments of each digit, using the usual a-g
// naming: a top, b upper right, c lower right, d bottom, e lower left,
// f upper left, g middle.
var segments = map[rune]string{
	'0': "abcdef",
	'1': "bc",
	'2': "abdeg",
	'3': "abcdg",
	'4': "bcfg",
	'5': "acdfg",
	'6': "acdefg",
	'7': "abc",
	'8': "abcdefg",
	'9': "abcdfg",
}

var palette = color.Palette{
	color.Transparent,
	color.RGBA{R: 80, G: 80, B: 80, A: 255},
}

// Render draws value as seven-segment digits on a transparent width x height
// canvas and returns it PNG encoded.
func Render(value string, width, height int) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("captcha: empty value")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("captcha: invalid size %dx%d", width, height)
	}

	img := image.NewPaletted(image.Rect(0, 0, width, height), palette)
	ink := image.NewUniform(palette[1])

	digits := []rune(value)
	cell := width / len(digits)
	digitWidth := cell * 3 / 5
	digitHeight := height * 3 / 4
	stroke := digitWidth / 4
	if stroke < 2 {
		stroke = 2
	}
	y0 := (height - digitHeight) / 2

	for i, r := range digits {
		lit, ok := segments[r]
		if !ok {
			return nil, fmt.Errorf("captcha: cannot render %q", r)
		}
		x0 := cell*i + (cell-digitWidth)/2
		for _, seg := range lit {
			draw.Draw(img, segmentRect(seg, x0, y0, digitWidth, digitHeight, stroke), ink, image.Point{}, draw.Src)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("captcha: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func segmentRect(seg rune, x, y, w, h, t int) image.Rectangle {
	mid := y + h/2
	switch seg {
	case 'a':
		return image.Rect(x, y, x+w, y+t)
	case 'b':
		return image.Rect(x+w-t, y, x+w, mid)
	case 'c':
		return image.Rect(x+w-t, mid, x+w, y+h)
	case 'd':
		return image.Rect(x, y+h-t, x+w, y+h)
	case 'e':
		return image.Rect(x, mid, x+t, y+h)
	case 'f':
		return image.Rect(x, y, x+t, mid)
	default: // 'g'
		return image.Rect(x, mid-t/2, x+w, mid-t/2+t)
	}
}
