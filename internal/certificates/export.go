package certificates

import (
	"context"
	"io"

	"github.com/xuri/excelize/v2"

	pkgerrors "github.com/angelmondragon/tastecert-backend/pkg/errors"
)

const registerSheet = "Certificates"

var registerHeader = []any{
	"Certificate No.",
	"Award",
	"Score",
	"Product",
	"Producer",
	"Category",
	"Issued",
	"Published",
}

// Export writes the certificate register as an xlsx workbook.
func (s *service) Export(ctx context.Context, w io.Writer, year *int) error {
	rows, err := s.repo.ListRegister(ctx, year)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list certificate register")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", registerSheet); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "prepare workbook")
	}
	if err := f.SetSheetRow(registerSheet, "A1", &registerHeader); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write header")
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E8E2D0"}},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create header style")
	}
	if err := f.SetCellStyle(registerSheet, "A1", "H1", headerStyle); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "style header")
	}

	for i := range rows {
		dto := s.toDTO(&rows[i])
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve cell")
		}
		values := []any{
			dto.CertificateNumber,
			dto.AwardLabel,
			dto.Score,
			dto.ProductName,
			dto.ProducerName,
			dto.CategoryName,
			dto.IssuedAt.Format("2006-01-02"),
			dto.IsPublished,
		}
		if err := f.SetSheetRow(registerSheet, cell, &values); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write row")
		}
	}

	_ = f.SetColWidth(registerSheet, "A", "A", 18)
	_ = f.SetColWidth(registerSheet, "D", "F", 28)
	_ = f.SetColWidth(registerSheet, "G", "G", 12)

	if err := f.Write(w); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeIOFailure, err, "write workbook")
	}
	return nil
}
