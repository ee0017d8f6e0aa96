package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/validation"
)

func TestWideToLongBalanceSheet(t *testing.T) {
	headers := []string{"Concepto", "2023", "2024", "Notas"}
	rows := [][]string{
		{"ACTIVO NO CORRIENTE", "", "", ""},
		{"Inmovilizado material", "1.000,00", "1.100,00", "neto"},
		{"ACTIVO CORRIENTE", "", "", ""},
		{"Existencias", "500", "", ""},
		{"PATRIMONIO NETO", "", "", ""},
		{"Capital", "900", "950", ""},
	}

	res := WideToLong(KindBalanceSheet, headers, rows)
	require.Empty(t, res.Findings)
	require.Len(t, res.Records, 5)

	byYear := map[int][]Record{}
	for _, r := range res.Records {
		byYear[r.Year] = append(byYear[r.Year], r)
	}
	require.Len(t, byYear[2023], 3)
	require.Len(t, byYear[2024], 2)

	first := byYear[2023][0]
	assert.Equal(t, "Inmovilizado material", first.Concept)
	assert.Equal(t, 1000.0, first.Amount)
	assert.Equal(t, "ACTIVO NO CORRIENTE", first.Section)
	assert.Equal(t, "neto", first.Notes)

	assert.Equal(t, "ACTIVO CORRIENTE", byYear[2023][1].Section)
	assert.Equal(t, "PATRIMONIO NETO", byYear[2023][2].Section)
}

func TestWideToLongSectionHeadersEmitNothing(t *testing.T) {
	headers := []string{"Concepto", "2023"}
	rows := [][]string{
		{"ACTIVO CORRIENTE", "999"},
		{"Tesorería", "100"},
	}
	res := WideToLong(KindBalanceSheet, headers, rows)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Tesorería", res.Records[0].Concept)
}

func TestWideToLongProfitLoss(t *testing.T) {
	headers := []string{"Concepto", "2023"}

	t.Run("whitelisted concept passes", func(t *testing.T) {
		rows := [][]string{{"Importe neto de la cifra de negocios", "5.000,00"}}
		res := WideToLong(KindProfitLoss, headers, rows)
		require.Empty(t, res.Findings)
		require.Len(t, res.Records, 1)
		assert.Equal(t, 5000.0, res.Records[0].Amount)
	})

	t.Run("case-insensitive match canonicalizes the label", func(t *testing.T) {
		rows := [][]string{{"GASTOS DE PERSONAL", "1200"}}
		res := WideToLong(KindProfitLoss, headers, rows)
		require.Len(t, res.Records, 1)
		assert.Equal(t, "Gastos de personal", res.Records[0].Concept)
	})

	t.Run("unknown concept rejected", func(t *testing.T) {
		rows := [][]string{{"EBITDA ajustado", "900"}}
		res := WideToLong(KindProfitLoss, headers, rows)
		assert.Empty(t, res.Records)
		require.Len(t, res.Findings, 1)
		assert.Equal(t, validation.TypeConceptDenied, res.Findings[0].Type)
		assert.Equal(t, 2, res.Findings[0].Row)
	})

	t.Run("negative amount rejected", func(t *testing.T) {
		rows := [][]string{{"Gastos de personal", "-1200"}}
		res := WideToLong(KindProfitLoss, headers, rows)
		assert.Empty(t, res.Records)
		require.Len(t, res.Findings, 1)
		assert.Equal(t, validation.TypeInvalidAmount, res.Findings[0].Type)
	})

	t.Run("unparsable amount rejected but other cells kept", func(t *testing.T) {
		multiHeaders := []string{"Concepto", "2023", "2024"}
		rows := [][]string{{"Gastos de personal", "abc", "1200"}}
		res := WideToLong(KindProfitLoss, multiHeaders, rows)
		require.Len(t, res.Findings, 1)
		require.Len(t, res.Records, 1)
		assert.Equal(t, 2024, res.Records[0].Year)
	})
}

func TestWideToLongSkipsBlanks(t *testing.T) {
	headers := []string{"Concepto", "2023"}
	rows := [][]string{
		{"", "100"},
		{},
		{"Existencias", ""},
	}
	res := WideToLong(KindGeneric, headers, rows)
	assert.Empty(t, res.Records)
	assert.Empty(t, res.Findings)
}

func TestSectionTotals(t *testing.T) {
	records := []Record{
		{Concept: "Inmovilizado", Year: 2023, Amount: 1000, Section: "ACTIVO NO CORRIENTE"},
		{Concept: "Existencias", Year: 2023, Amount: 2000, Section: "ACTIVO CORRIENTE"},
		{Concept: "Capital", Year: 2023, Amount: 1200, Section: "PATRIMONIO NETO"},
		{Concept: "Deuda", Year: 2023, Amount: 1800, Section: "PASIVO NO CORRIENTE"},
		{Concept: "Existencias", Year: 2024, Amount: 999, Section: "ACTIVO CORRIENTE"},
	}
	totals := SectionTotals(records, 2023)
	assert.Equal(t, 3000.0, totals["asset"])
	assert.Equal(t, 1200.0, totals["equity"])
	assert.Equal(t, 1800.0, totals["liability"])
}

func TestYears(t *testing.T) {
	records := []Record{
		{Year: 2024}, {Year: 2022}, {Year: 2024}, {Year: 2023},
	}
	assert.Equal(t, []int{2022, 2023, 2024}, Years(records))
}
