package certificates

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tastecert-backend/pkg/errors"
	"github.com/angelmondragon/tastecert-backend/pkg/storage"
)

type rgb struct{ r, g, b int }

var tierColors = map[enums.AwardTier]rgb{
	enums.AwardTierGrandGold: {176, 129, 20},
	enums.AwardTierGold:      {212, 160, 23},
	enums.AwardTierSilver:    {140, 146, 153},
	enums.AwardTierBronze:    {166, 104, 52},
}

// RenderPDF draws a landscape A4 certificate.
func RenderPDF(certificate *models.Certificate, issuer, verificationURL string) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Certificate "+certificate.CertificateNumber, true)
	pdf.SetAuthor(issuer, true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	width, height := pdf.GetPageSize()
	accent, ok := tierColors[certificate.AwardTier]
	if !ok {
		accent = rgb{60, 60, 60}
	}

	pdf.SetDrawColor(accent.r, accent.g, accent.b)
	pdf.SetLineWidth(2.5)
	pdf.Rect(10, 10, width-20, height-20, "D")
	pdf.SetLineWidth(0.6)
	pdf.Rect(15, 15, width-30, height-30, "D")

	var productName, producerName, categoryName string
	if p := certificate.Product; p != nil {
		productName = p.Name
		if p.Producer != nil {
			producerName = p.Producer.DisplayName()
		}
		if p.Category != nil {
			categoryName = p.Category.Name
		}
	}

	center := func(y float64, family, style string, size float64, text string) {
		pdf.SetFont(family, style, size)
		pdf.SetXY(20, y)
		pdf.CellFormat(width-40, size*0.5, tr(text), "", 0, "C", false, 0, "")
	}

	pdf.SetTextColor(40, 40, 40)
	center(30, "Helvetica", "", 14, issuer)
	center(42, "Times", "B", 34, "Certificate of Excellence")

	pdf.SetTextColor(accent.r, accent.g, accent.b)
	center(64, "Helvetica", "B", 28, certificate.AwardTier.DisplayName()+" Award")

	pdf.SetTextColor(40, 40, 40)
	center(84, "Helvetica", "", 12, "This certifies that")
	center(94, "Times", "B", 26, productName)
	center(110, "Helvetica", "", 13, "produced by "+producerName)
	if categoryName != "" {
		center(119, "Helvetica", "I", 12, "Category: "+categoryName)
	}
	center(132, "Helvetica", "B", 16, fmt.Sprintf("Score %.1f / 10", certificate.Score))

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetXY(25, height-40)
	pdf.CellFormat(120, 6, tr("Issued "+certificate.IssuedAt.Format("2 January 2006")), "", 2, "L", false, 0, "")
	pdf.CellFormat(120, 6, tr("Certificate No. "+certificate.CertificateNumber), "", 0, "L", false, 0, "")

	pdf.SetXY(width-145, height-40)
	pdf.CellFormat(120, 6, tr("Verify at"), "", 2, "R", false, 0, "")
	pdf.SetTextColor(30, 80, 160)
	pdf.CellFormat(120, 6, tr(verificationURL), "", 0, "R", false, 0, verificationURL)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderAndStore writes the PDF and records its key. The file is removed
// again when the row update fails.
func (s *service) renderAndStore(ctx context.Context, certificate *models.Certificate) error {
	data, err := RenderPDF(certificate, s.issuerName, s.verificationURL(certificate.CertificateNumber))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render certificate pdf")
	}

	key := storage.CertificateKey(certificate.CertificateNumber)
	if err := s.store.Put(ctx, key, bytes.NewReader(data), "application/pdf"); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeIOFailure, err, "store certificate pdf")
	}
	if certificate.PDFKey != nil && *certificate.PDFKey == key {
		return nil
	}
	if err := s.repo.SetPDFKey(ctx, certificate.ID, &key); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil && s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "key", key), "orphaned certificate pdf", delErr)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save certificate pdf key")
	}
	certificate.PDFKey = &key
	return nil
}
