package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"ecoquote/internal/model"

	"github.com/go-pdf/fpdf"
)

const (
	pageWidth   = 210.0
	marginLeft  = 15.0
	marginRight = 15.0
	lineHeight  = 6.0
)

var tableColumns = []struct {
	title string
	width float64
	align string
}{
	{"Permit", 70, "L"},
	{"Agency", 45, "L"},
	{"Time estimate", 35, "L"},
	{"Price", 30, "R"},
}

// Render draws a quotation document and returns the PDF bytes
func Render(companyName string, q *model.Quotation, generatedAt time.Time) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(marginLeft, 15, marginRight)
	doc.SetTitle(fmt.Sprintf("Quotation %s", q.ID), true)
	doc.SetAuthor(companyName, true)
	doc.SetCreationDate(generatedAt)
	tr := doc.UnicodeTranslatorFromDescriptor("")
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 18)
	doc.CellFormat(0, 10, tr(companyName), "", 1, "L", false, 0, "")
	doc.SetFont("Helvetica", "", 11)
	doc.CellFormat(0, lineHeight, tr("Quotation "+q.ID), "", 1, "L", false, 0, "")
	doc.CellFormat(0, lineHeight, "Generated "+generatedAt.UTC().Format("January 2, 2006"), "", 1, "L", false, 0, "")
	doc.Ln(4)

	section(doc, "Client")
	field(doc, tr, "Name", q.Name)
	field(doc, tr, "Email", q.Email)
	if q.Phone != "" {
		field(doc, tr, "Phone", q.Phone)
	}
	if q.Company != "" {
		field(doc, tr, "Company", q.Company)
	}
	doc.Ln(2)

	section(doc, "Request")
	field(doc, tr, "Service", q.ServiceType.Label())
	field(doc, tr, "Status", strings.ToUpper(string(q.Status)))
	if q.Description != "" {
		doc.SetFont("Helvetica", "B", 10)
		doc.CellFormat(35, lineHeight, "Description", "", 0, "L", false, 0, "")
		doc.SetFont("Helvetica", "", 10)
		doc.MultiCell(0, lineHeight, tr(q.Description), "", "L", false)
	}
	doc.Ln(2)

	section(doc, "Permits")
	if len(q.PermitRequests) == 0 {
		doc.SetFont("Helvetica", "I", 10)
		doc.CellFormat(0, lineHeight, "No permits requested", "", 1, "L", false, 0, "")
	} else {
		permitTable(doc, tr, q.PermitRequests)
	}
	doc.Ln(4)

	doc.SetFont("Helvetica", "B", 12)
	if q.Amount != nil {
		doc.CellFormat(0, 8, fmt.Sprintf("Estimated total: $%.2f", *q.Amount), "", 1, "R", false, 0, "")
	} else {
		doc.CellFormat(0, 8, fmt.Sprintf("Catalog subtotal: $%.2f", catalogSubtotal(q.PermitRequests)), "", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func section(doc *fpdf.Fpdf, title string) {
	doc.SetFont("Helvetica", "B", 13)
	doc.CellFormat(0, 8, title, "B", 1, "L", false, 0, "")
	doc.Ln(1)
}

func field(doc *fpdf.Fpdf, tr func(string) string, label, value string) {
	doc.SetFont("Helvetica", "B", 10)
	doc.CellFormat(35, lineHeight, label, "", 0, "L", false, 0, "")
	doc.SetFont("Helvetica", "", 10)
	doc.CellFormat(0, lineHeight, tr(value), "", 1, "L", false, 0, "")
}

func permitTable(doc *fpdf.Fpdf, tr func(string) string, requests []model.PermitRequest) {
	doc.SetFont("Helvetica", "B", 10)
	doc.SetFillColor(230, 240, 230)
	for _, col := range tableColumns {
		doc.CellFormat(col.width, 7, col.title, "1", 0, col.align, true, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Helvetica", "", 10)
	for _, pr := range requests {
		agency, estimate, price := "", "", "custom"
		if pr.PermitType != nil {
			agency = pr.PermitType.AgencyName
			estimate = pr.PermitType.TimeEstimate
			price = fmt.Sprintf("$%.2f", pr.PermitType.Price)
		}
		cells := []string{pr.DisplayName(), agency, estimate, price}
		for i, col := range tableColumns {
			doc.CellFormat(col.width, 7, tr(truncate(doc, cells[i], col.width-2)), "1", 0, col.align, false, 0, "")
		}
		doc.Ln(-1)
	}
}

func catalogSubtotal(requests []model.PermitRequest) float64 {
	var total float64
	for _, pr := range requests {
		if pr.PermitType != nil {
			total += pr.PermitType.Price
		}
	}
	return total
}

func truncate(doc *fpdf.Fpdf, s string, width float64) string {
	if doc.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && doc.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}
