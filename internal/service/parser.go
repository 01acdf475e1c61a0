package service

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jjenkins/sorteio/internal/model"
)

// RowError describes a CSV line that could not be turned into a registrant
type RowError struct {
	Line   int
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// ParseResult contains the registrants read from a CSV file
type ParseResult struct {
	Registrants []model.Registrant
	Invalid     []RowError
}

// Parser reads registrant CSV files with the columns cpf,nome[,observacao].
// A first line starting with "cpf" is treated as a header.
type Parser struct {
	comma rune
}

// NewParser creates a Parser splitting fields on comma.
func NewParser(comma rune) *Parser {
	if comma == 0 {
		comma = ','
	}
	return &Parser{comma: comma}
}

// Parse reads every row of r
func (p *Parser) Parse(r io.Reader) (*ParseResult, error) {
	reader := csv.NewReader(r)
	reader.Comma = p.comma
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	result := &ParseResult{}
	seen := map[string]int{}

	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}

		if line == 1 && len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "cpf") {
			continue
		}

		cpf := NormalizeCPF(field(record, 0))
		if cpf == "" {
			result.Invalid = append(result.Invalid, RowError{Line: line, Reason: "missing cpf"})
			continue
		}
		if first, dup := seen[cpf]; dup {
			result.Invalid = append(result.Invalid, RowError{Line: line, Reason: fmt.Sprintf("cpf repeated from line %d", first)})
			continue
		}
		seen[cpf] = line

		result.Registrants = append(result.Registrants, model.Registrant{
			CPF:         cpf,
			Name:        optional(field(record, 1)),
			Observation: optional(field(record, 2)),
		})
	}

	return result, nil
}

// NormalizeCPF strips the usual punctuation from a CPF ("123.456.789-01").
func NormalizeCPF(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '-', ' ', '/':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
}

func field(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
