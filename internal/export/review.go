// Package export writes annotated invoice items to an XLSX review sheet and
// reads the reviewer's decisions back as selections.
package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rezonia/stock-intake/internal/model"
)

// SheetName is the worksheet holding the review rows
const SheetName = "Review"

const dateLayout = "2006-01-02"

// Header is the column layout of the review sheet. The last four columns
// are the ones a reviewer edits.
var Header = []string{
	"Index",
	"Line",
	"Product",
	"Article",
	"Quantity",
	"Unit Price",
	"Total",
	"Match",
	"Confidence",
	"Product ID",
	"Best Before",
	"Take",
	"To Stock",
}

const (
	colIndex      = 0
	colProductID  = 9
	colBestBefore = 10
	colTake       = 11
	colToStock    = 12
)

// WriteReview renders one row per annotated item. Matched items are
// pre-selected for taking and stocking.
func WriteReview(w io.Writer, items []model.AnnotatedItem) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}

	for i, h := range Header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return err
		}
	}

	for i, a := range items {
		matched := a.Match.ProductID != nil
		productID := ""
		if matched {
			productID = strconv.FormatInt(*a.Match.ProductID, 10)
		}
		bestBefore := ""
		if a.Item.BestBefore != nil {
			bestBefore = a.Item.BestBefore.Format(dateLayout)
		}

		row := []interface{}{
			i,
			a.Item.Line,
			a.Item.ProductName,
			a.Item.ArticleNumber,
			a.Item.Quantity,
			a.Item.UnitPrice.InexactFloat64(),
			a.Item.TotalPrice.InexactFloat64(),
			string(a.Match.Type),
			a.Match.Confidence,
			productID,
			bestBefore,
			yesNo(matched),
			yesNo(matched),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return err
		}
	}

	return f.Write(w)
}

// ReadSelections reads a review sheet back. Rows not marked Take are skipped.
func ReadSelections(r io.Reader) ([]model.Selection, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open review sheet: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		return nil, fmt.Errorf("read review sheet: %w", err)
	}
	if len(rows) == 0 || !headerMatches(rows[0]) {
		return nil, errors.New("review sheet has an unexpected header")
	}

	var (
		out  []model.Selection
		errs []error
	)
	for n, row := range rows[1:] {
		rowNo := n + 2
		if !isYes(cellAt(row, colTake)) {
			continue
		}

		idx, err := strconv.Atoi(cellAt(row, colIndex))
		if err != nil {
			errs = append(errs, model.NewValidationError(fmt.Sprintf("row %d index", rowNo), cellAt(row, colIndex), "int", "index is not a number"))
			continue
		}
		sel := model.Selection{Index: idx, ToStock: isYes(cellAt(row, colToStock))}

		if raw := cellAt(row, colProductID); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				errs = append(errs, model.NewValidationError(fmt.Sprintf("row %d product id", rowNo), raw, "gt=0", "product id must be a positive number"))
				continue
			}
			sel.ProductID = &id
		}
		if raw := cellAt(row, colBestBefore); raw != "" {
			bb, err := time.Parse(dateLayout, raw)
			if err != nil {
				errs = append(errs, model.NewValidationError(fmt.Sprintf("row %d best before", rowNo), raw, "date", "best before must be YYYY-MM-DD"))
				continue
			}
			sel.BestBefore = &bb
		}
		out = append(out, sel)
	}
	if len(errs) > 0 {
		return out, errors.Join(errs...)
	}
	return out, nil
}

func headerMatches(row []string) bool {
	if len(row) < len(Header) {
		return false
	}
	for i, h := range Header {
		if strings.TrimSpace(row[i]) != h {
			return false
		}
	}
	return true
}

func cellAt(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func isYes(s string) bool {
	switch strings.ToLower(s) {
	case "yes", "y", "x", "true", "1", "ja":
		return true
	}
	return false
}
