package products

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/angelmondragon/tastecert-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/tastecert-backend/pkg/errors"
	"github.com/angelmondragon/tastecert-backend/pkg/storage"
)

const (
	defaultImageMaxEdge = 1600
	defaultMaxImageSize = 10 << 20
)

var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
}

// UploadImage normalizes the upload to PNG and swaps it in for the current image.
// The new object is written before the row changes and removed again if the row update fails.
func (s *service) UploadImage(ctx context.Context, actor auth.Actor, id uuid.UUID, r io.Reader) (*ProductDTO, error) {
	product, err := s.loadOwned(ctx, s.repo, actor, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !product.Status.EditableByProducer() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "product can no longer be edited")
	}

	encoded, err := s.normalizeImage(r)
	if err != nil {
		return nil, err
	}

	key := storage.ProductImageKey(id.String(), s.now().UnixMilli())
	if err := s.store.Put(ctx, key, bytes.NewReader(encoded), "image/png"); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIOFailure, err, "store product image")
	}

	if err := s.repo.SetImageKey(ctx, id, &key); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil && s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "key", key), "orphaned product image", delErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save product image")
	}

	if product.ImageKey != nil && *product.ImageKey != key {
		if err := s.store.Delete(ctx, *product.ImageKey); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "key", *product.ImageKey), "previous product image cleanup failed")
		}
	}

	product.ImageKey = &key
	dto := s.toDTO(product)
	return &dto, nil
}

func (s *service) normalizeImage(r io.Reader) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r, s.maxImageSize+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIOFailure, err, "read upload")
	}
	if len(raw) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "image is empty")
	}
	if int64(len(raw)) > s.maxImageSize {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "image exceeds upload limit").
			WithDetails(map[string]any{"max_bytes": s.maxImageSize})
	}
	contentType := http.DetectContentType(raw)
	if !allowedImageTypes[contentType] {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "image must be png or jpeg").
			WithDetails(map[string]any{"content_type": contentType})
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode image")
	}

	out := downscale(src, s.imageMaxEdge)
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIOFailure, err, "encode image")
	}
	return buf.Bytes(), nil
}

// downscale shrinks img so its longest edge is at most maxEdge.
func downscale(img image.Image, maxEdge int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxEdge && h <= maxEdge {
		return img
	}
	var nw, nh int
	if w >= h {
		nw = maxEdge
		nh = h * maxEdge / w
	} else {
		nh = maxEdge
		nw = w * maxEdge / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
