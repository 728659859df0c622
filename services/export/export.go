// Package export renders listings as xlsx spreadsheets.
package export

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/fedimaraquino/dossie-escolar-sub000/core/dossier"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/movement"
)

const (
	dateLayout     = "02/01/2006"
	dateTimeLayout = "02/01/2006 15:04"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	dossierHeader = []interface{}{
		"ID", "Número", "Ano", "Nome", "CPF", "Pai", "Mãe", "Local", "Pasta", "Status", "Tipo de documento", "Criado em",
	}
	movementHeader = []interface{}{
		"ID", "Dossiê", "Tipo", "Status", "Solicitante", "Documento", "Motivo", "Data",
		"Devolução prevista", "Devolvido em", "Dias em atraso",
	}
)

// sheet writes rows under a bold header on a single sheet named name.
func sheet(w io.Writer, name string, header []interface{}, widths []float64, rows [][]interface{}) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", name); err != nil {
		return errors.Wrap(err, "naming sheet")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return errors.Wrap(err, "writing header")
	}
	last, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetCellStyle(name, "A1", last+"1", bold); err != nil {
		return errors.Wrap(err, "styling header")
	}
	for i, width := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(name, col, col, width); err != nil {
			return errors.Wrap(err, "sizing columns")
		}
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := row
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return errors.Wrapf(err, "writing row %d", i+2)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "writing spreadsheet")
	}
	return nil
}

func formatTime(t *time.Time, layout string) string {
	if t == nil {
		return ""
	}
	return t.Format(layout)
}

// Dossiers writes one row per dossier.
func Dossiers(w io.Writer, dossiers []dossier.Dossier) error {
	rows := make([][]interface{}, 0, len(dossiers))
	for _, d := range dossiers {
		rows = append(rows, []interface{}{
			d.ID, d.Number, d.Year, d.Name, d.CPF, d.FatherName, d.MotherName, d.Location, d.Folder,
			string(d.Status), d.DocumentType, d.CreatedAt.Format(dateTimeLayout),
		})
	}
	widths := []float64{8, 12, 8, 35, 14, 30, 30, 20, 12, 10, 20, 17}
	return sheet(w, "Dossies", dossierHeader, widths, rows)
}

// Movements writes one row per movement, with the days overdue at now.
func Movements(w io.Writer, movs []movement.Movement, now time.Time) error {
	rows := make([][]interface{}, 0, len(movs))
	for _, m := range movs {
		rows = append(rows, []interface{}{
			m.ID, m.DossierID, string(m.Kind), string(m.Status), m.RequesterName, m.RequesterDocument, m.Reason,
			m.OccurredAt.Format(dateTimeLayout),
			formatTime(m.ExpectedReturnAt, dateLayout),
			formatTime(m.ReturnedAt, dateLayout),
			m.DaysOverdue(now),
		})
	}
	widths := []float64{8, 8, 14, 11, 30, 14, 35, 17, 18, 14, 14}
	return sheet(w, "Movimentacoes", movementHeader, widths, rows)
}
