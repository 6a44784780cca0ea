package bildset

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"

	"github.com/anthonynsimon/bild/imgio"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"k8s.io/klog/v2"
)

// RenderOpts are placeholder image options.
type RenderOpts struct {
	Width  int
	Height int
}

var defaultRenderOpts = RenderOpts{Width: 512, Height: 512}

// fallbackText is drawn when the prompt is empty.
var fallbackText = "Custom Image"

// promptSeed reduces a prompt to a deterministic value in [1, 254].
func promptSeed(prompt string) int {
	sum := 0
	for _, r := range prompt {
		sum += int(r)
	}

	seed := sum % 255
	if seed == 0 {
		seed = 1
	}
	return seed
}

// PromptColor returns the deterministic background color for a prompt.
func PromptColor(prompt string) color.RGBA {
	seed := promptSeed(prompt)
	return color.RGBA{
		R: uint8(seed),
		G: uint8(255 - seed),
		B: uint8((seed * 2) % 255),
		A: 255,
	}
}

// Synthesize renders a placeholder image for a prompt: a solid background
// whose color is derived from the prompt, with the prompt text overlaid.
// The same prompt always yields the same image.
func Synthesize(prompt string, o RenderOpts) *image.RGBA {
	if o.Width <= 0 || o.Height <= 0 {
		o = defaultRenderOpts
	}

	bg := PromptColor(prompt)
	klog.V(1).Infof("synthesizing %dx%d image for %q (bg %v)", o.Width, o.Height, prompt, bg)

	img := image.NewRGBA(image.Rect(0, 0, o.Width, o.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	text := prompt
	if rs := []rune(text); len(rs) > 50 {
		text = string(rs[:50])
	}
	if text == "" {
		text = fallbackText
	}

	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{R: 255, G: 255, B: 255, A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(20, o.Height/2-10),
	}
	d.DrawString(text)

	return img
}

// EncodePNG encodes an image to PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := imgio.PNGEncoder()
	if err := enc(&buf, img); err != nil {
		return nil, &RenderError{Err: err}
	}
	return buf.Bytes(), nil
}
