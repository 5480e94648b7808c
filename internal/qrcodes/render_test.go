package qrcodes

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tastecert-backend/pkg/config"
)

func TestParseHexColor(t *testing.T) {
	c, err := parseHexColor("#1B1B1B")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0x1b, G: 0x1b, B: 0x1b, A: 0xff}, c)

	c, err = parseHexColor("fff")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, c)

	_, err = parseHexColor("#12345")
	assert.Error(t, err)
	_, err = parseHexColor("#zzzzzz")
	assert.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := OptionsFromConfig(config.QRConfig{Size: 300, Margin: 10, ForegroundColor: "#000000", BackgroundColor: "#FFFFFF", LogoSize: 60})
	require.NoError(t, err)
	assert.Equal(t, 300, opts.Size)
	assert.Equal(t, 60, opts.LogoSize)

	_, err = OptionsFromConfig(config.QRConfig{ForegroundColor: "black", BackgroundColor: "#FFFFFF"})
	assert.Error(t, err)
}

func TestRenderProducesSquarePNG(t *testing.T) {
	data, err := Render("https://tastecert.test/products/1?qr=true", RenderOptions{Size: 256, Margin: 8})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
	assert.Equal(t, 256, img.Bounds().Dy())

	r, g, b, _ := img.At(1, 1).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0xffff), b)
}

func TestRenderWithLogo(t *testing.T) {
	logoPath := filepath.Join(t.TempDir(), "logo.png")
	logo := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for x := 0; x < 40; x++ {
		for y := 0; y < 40; y++ {
			logo.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, logo))
	require.NoError(t, os.WriteFile(logoPath, buf.Bytes(), 0o600))

	data, err := Render("https://tastecert.test", RenderOptions{Size: 300, Margin: 10, LogoPath: logoPath, LogoSize: 60})
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	r, g, b, _ := img.At(150, 150).RGBA()
	assert.Greater(t, r, uint32(0x8000))
	assert.Less(t, g, uint32(0x2000))
	assert.Less(t, b, uint32(0x2000))
}

func TestRenderIgnoresMissingLogo(t *testing.T) {
	_, err := Render("https://tastecert.test", RenderOptions{Size: 128, LogoPath: filepath.Join(t.TempDir(), "missing.png")})
	require.NoError(t, err)
}
