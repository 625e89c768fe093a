package avatar

import (
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// palette holds the material-design colors a generated placeholder can use.
// The palette and the hash below are stable: changing either would change
// every user's placeholder color across releases.
var palette = []color.RGBA{
	{0xe5, 0x73, 0x73, 0xff}, {0xf0, 0x62, 0x92, 0xff}, {0xba, 0x68, 0xc8, 0xff},
	{0x95, 0x75, 0xcd, 0xff}, {0x79, 0x86, 0xcb, 0xff}, {0x64, 0xb5, 0xf6, 0xff},
	{0x4f, 0xc3, 0xf7, 0xff}, {0x4d, 0xd0, 0xe1, 0xff}, {0x4d, 0xb6, 0xac, 0xff},
	{0x81, 0xc7, 0x84, 0xff}, {0xae, 0xd5, 0x81, 0xff}, {0xff, 0x8a, 0x65, 0xff},
	{0xd4, 0xe1, 0x57, 0xff}, {0xff, 0xd5, 0x4f, 0xff}, {0xff, 0xb7, 0x4d, 0xff},
	{0xa1, 0x88, 0x7f, 0xff},
}

// ColorFor returns the placeholder color for a display name. The sdbm
// string hash makes the choice deterministic within and across processes.
func ColorFor(name string) color.RGBA {
	var hash uint32
	for _, b := range []byte(name) {
		hash = uint32(b) + (hash << 6) + (hash << 16) - hash
	}
	return palette[hash%uint32(len(palette))]
}

// Placeholder synthesizes the fallback avatar for a name: a solid colored
// circle carrying the name's first letter. Equal names produce equal
// images.
func Placeholder(name string) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, Size, Size))
	fillCircle(img, ColorFor(name))

	letter := "?"
	if name != "" {
		letter = strings.ToUpper(name[:1])
	}
	drawCenteredLetter(img, letter)
	return img
}

// fillCircle paints an opaque circle spanning the whole image.
func fillCircle(img *image.RGBA, c color.RGBA) {
	r := Size / 2.0
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			dx := float64(x) + 0.5 - r
			dy := float64(y) + 0.5 - r
			if dx*dx+dy*dy <= r*r {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

func drawCenteredLetter(img *image.RGBA, letter string) {
	face := basicfont.Face7x13
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
	}
	width := d.MeasureString(letter)
	d.Dot = fixed.Point26_6{
		X: fixed.I(Size/2) - width/2,
		Y: fixed.I(Size/2) + fixed.I(face.Ascent-face.Height/2),
	}
	d.DrawString(letter)
}

// circleMask returns the alpha mask used to clip fetched avatars to a
// circle.
func circleMask() *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, Size, Size))
	r := Size / 2.0
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			dx := float64(x) + 0.5 - r
			dy := float64(y) + 0.5 - r
			if dx*dx+dy*dy <= r*r {
				mask.SetAlpha(x, y, color.Alpha{A: 0xff})
			}
		}
	}
	return mask
}
