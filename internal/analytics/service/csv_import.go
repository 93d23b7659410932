package service

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ridloal/retail-analytics-engine/internal/analytics/domain"
	"github.com/ridloal/retail-analytics-engine/internal/platform/security"
)

// SalesCSVHeader is the required first line of a sales upload.
var SalesCSVHeader = []string{"product_id", "product_name", "category", "customer_id", "quantity", "unit_price", "sold_at"}

// maxReportedRowErrors bounds the row errors returned to the client; the
// rejected count still covers every bad row.
const maxReportedRowErrors = 100

var ErrInvalidCSV = errors.New("invalid CSV file")

// ParseSalesCSV reads a sales upload. Malformed rows are skipped and reported
// by line number; structural problems such as a wrong header fail the whole file.
func ParseSalesCSV(r io.Reader, sourceFile string) (records []domain.SaleRecord, rowErrors []domain.RowError, rejected int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, 0, fmt.Errorf("%w: file is empty", ErrInvalidCSV)
		}
		return nil, nil, 0, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}
	if !validHeader(header) {
		return nil, nil, 0, fmt.Errorf("%w: header must be %s", ErrInvalidCSV, strings.Join(SalesCSVHeader, ","))
	}

	reject := func(line int, reason string) {
		rejected++
		if len(rowErrors) < maxReportedRowErrors {
			rowErrors = append(rowErrors, domain.RowError{Line: line, Reason: reason})
		}
	}

	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				reject(parseErr.StartLine, parseErr.Err.Error())
				continue
			}
			return nil, nil, 0, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
		}

		line, _ := reader.FieldPos(0)
		rec, reason := parseSaleRow(fields)
		if reason != "" {
			reject(line, reason)
			continue
		}
		rec.SourceFile = sourceFile
		records = append(records, rec)
	}
	return records, rowErrors, rejected, nil
}

func validHeader(header []string) bool {
	if len(header) != len(SalesCSVHeader) {
		return false
	}
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		if col != SalesCSVHeader[i] {
			return false
		}
	}
	return true
}

func parseSaleRow(fields []string) (domain.SaleRecord, string) {
	if len(fields) != len(SalesCSVHeader) {
		return domain.SaleRecord{}, fmt.Sprintf("expected %d fields, got %d", len(SalesCSVHeader), len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(security.SanitizeInput(fields[i]))
	}

	rec := domain.SaleRecord{
		ProductID:   fields[0],
		ProductName: fields[1],
		Category:    fields[2],
		CustomerID:  fields[3],
	}
	for i, v := range fields[:4] {
		if v == "" {
			return rec, SalesCSVHeader[i] + " is required"
		}
	}

	qty, err := strconv.Atoi(fields[4])
	if err != nil || qty <= 0 {
		return rec, "quantity must be a positive integer"
	}
	rec.Quantity = qty

	price, err := strconv.ParseFloat(fields[5], 64)
	if err != nil || price < 0 {
		return rec, "unit_price must be a non-negative number"
	}
	rec.UnitPrice = price

	soldAt, err := parseSoldAt(fields[6])
	if err != nil {
		return rec, "sold_at must be RFC3339 or YYYY-MM-DD"
	}
	rec.SoldAt = soldAt
	return rec, ""
}

func parseSoldAt(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
