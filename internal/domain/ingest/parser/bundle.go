package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/template"
)

var (
	ErrMissingRequiredFiles = errors.New("missing required files")
	ErrUnknownBundleFile    = errors.New("unknown bundle file")
)

// requiredBundleFiles must all be present before any processing starts.
var requiredBundleFiles = []string{
	"cuenta-pyg.csv",
	"balance-situacion.csv",
}

// bundleTemplates maps each canonical bundle filename to its template name.
var bundleTemplates = map[string]string{
	"cuenta-pyg.csv":              template.NameProfitLoss,
	"balance-situacion.csv":       template.NameBalanceSheet,
	"pool-deuda.csv":              template.NameDebtPool,
	"pool-deuda-vencimientos.csv": template.NameDebtMaturities,
	"estado-flujos.csv":           template.NameCashflow,
	"datos-operativos.csv":        template.NameOperational,
	"supuestos-financieros.csv":   template.NameAssumptions,
	"info-empresa.csv":            template.NameCompanyInfo,
	"ratios-financieros.csv":      template.NameFinancialRatios,
}

// BundleFile is one recognized file of a multi-file upload.
type BundleFile struct {
	Filename     string
	TemplateName string
	Data         []byte
}

// CheckBundle validates the uploaded filename set against the canonical
// bundle and returns the recognized files in deterministic order. Missing
// required files reject the whole bundle; unknown filenames reject too, so
// a typo never silently drops a statement.
func CheckBundle(files map[string][]byte) ([]BundleFile, error) {
	var unknown []string
	for name := range files {
		if _, ok := bundleTemplates[strings.ToLower(name)]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s", ErrUnknownBundleFile, strings.Join(unknown, ", "))
	}

	var missing []string
	for _, req := range requiredBundleFiles {
		if _, ok := files[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequiredFiles, strings.Join(missing, ", "))
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]BundleFile, 0, len(names))
	for _, name := range names {
		out = append(out, BundleFile{
			Filename:     name,
			TemplateName: bundleTemplates[strings.ToLower(name)],
			Data:         files[name],
		})
	}
	return out, nil
}

// TemplateForFilename returns the template name a canonical bundle filename
// maps to, or false when the filename is not part of the bundle.
func TemplateForFilename(name string) (string, bool) {
	t, ok := bundleTemplates[strings.ToLower(name)]
	return t, ok
}

// DebtPoolRecord is one pool-deuda.csv line. The debt pool is the only
// fixed-schema bundle file, so it decodes straight into a struct.
type DebtPoolRecord struct {
	Entity       string  `csv:"Entidad"`
	Kind         string  `csv:"Tipo"`
	Initial      float64 `csv:"Importe Inicial"`
	Outstanding  float64 `csv:"Pendiente"`
	InterestRate float64 `csv:"Tipo Interes"`
	Maturity     string  `csv:"Vencimiento"`
}

// ParseDebtPool decodes a debt pool CSV using the detected delimiter.
func ParseDebtPool(data []byte, delimiter rune) ([]DebtPoolRecord, error) {
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.Comma = delimiter
		r.LazyQuotes = true
		r.TrimLeadingSpace = true
		return r
	})

	var records []DebtPoolRecord
	if err := gocsv.Unmarshal(bytes.NewReader(data), &records); err != nil {
		return nil, fmt.Errorf("failed to parse debt pool: %w", err)
	}
	return records, nil
}
