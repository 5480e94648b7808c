package qrcodes

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"os"
	"strconv"
	"strings"

	"github.com/fogleman/gg"
	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"

	"github.com/angelmondragon/tastecert-backend/pkg/config"
)

// discPadding is how much larger than the logo the backing disc is drawn.
const discPadding = 1.15

// RenderOptions controls the rendered QR image.
type RenderOptions struct {
	Size       int
	Margin     int
	Foreground color.Color
	Background color.Color
	LogoPath   string
	LogoSize   int
}

// OptionsFromConfig parses the configured colours.
func OptionsFromConfig(cfg config.QRConfig) (RenderOptions, error) {
	fg, err := parseHexColor(cfg.ForegroundColor)
	if err != nil {
		return RenderOptions{}, fmt.Errorf("qr foreground: %w", err)
	}
	bg, err := parseHexColor(cfg.BackgroundColor)
	if err != nil {
		return RenderOptions{}, fmt.Errorf("qr background: %w", err)
	}
	return RenderOptions{
		Size:       cfg.Size,
		Margin:     cfg.Margin,
		Foreground: fg,
		Background: bg,
		LogoPath:   strings.TrimSpace(cfg.LogoPath),
		LogoSize:   cfg.LogoSize,
	}, nil
}

func (o RenderOptions) withDefaults() RenderOptions {
	if o.Size <= 0 {
		o.Size = 512
	}
	if o.Margin < 0 || o.Margin*2 >= o.Size {
		o.Margin = 0
	}
	if o.Foreground == nil {
		o.Foreground = color.Black
	}
	if o.Background == nil {
		o.Background = color.White
	}
	if o.LogoSize <= 0 {
		o.LogoSize = o.Size / 5
	}
	return o
}

// Render encodes content at High error correction and returns a PNG. When a
// logo is configured and present, it is drawn centred over a background disc.
func Render(content string, opts RenderOptions) ([]byte, error) {
	opts = opts.withDefaults()

	code, err := qrcode.New(content, qrcode.High)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	code.DisableBorder = true
	code.ForegroundColor = opts.Foreground
	code.BackgroundColor = opts.Background

	inner := opts.Size - 2*opts.Margin
	matrix := code.Image(inner)

	dc := gg.NewContext(opts.Size, opts.Size)
	dc.SetColor(opts.Background)
	dc.Clear()
	dc.DrawImage(matrix, opts.Margin, opts.Margin)

	if opts.LogoPath != "" {
		logo, err := loadLogo(opts.LogoPath, opts.LogoSize)
		if err != nil {
			return nil, err
		}
		if logo != nil {
			center := float64(opts.Size) / 2
			dc.SetColor(opts.Background)
			dc.DrawCircle(center, center, float64(opts.LogoSize)/2*discPadding)
			dc.Fill()
			dc.DrawImageAnchored(logo, int(center), int(center), 0.5, 0.5)
		}
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// loadLogo returns nil without error when the logo file does not exist.
func loadLogo(path string, size int) (image.Image, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat logo: %w", err)
	}
	src, err := gg.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("load logo: %w", err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst, nil
}

func parseHexColor(value string) (color.Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return nil, fmt.Errorf("invalid colour %q", value)
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid colour %q", value)
	}
	return color.RGBA{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), A: 0xff}, nil
}
