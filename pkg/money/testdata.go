package money

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// TestDataGenerator produces realistic accounting fixtures using gofakeit.
// Generated files follow the canonical upload layout: a concept column
// followed by one column per fiscal year.
type TestDataGenerator struct {
	faker *gofakeit.Faker
}

// NewTestDataGenerator creates a generator with a random seed.
func NewTestDataGenerator() *TestDataGenerator {
	return &TestDataGenerator{
		faker: gofakeit.New(0),
	}
}

// NewTestDataGeneratorWithSeed creates a generator with a specific seed for
// reproducibility.
func NewTestDataGeneratorWithSeed(seed int64) *TestDataGenerator {
	return &TestDataGenerator{
		faker: gofakeit.New(seed),
	}
}

// RandomAmount generates a non-negative amount with two decimals inside the
// given range.
func (g *TestDataGenerator) RandomAmount(min, max float64) float64 {
	v := g.faker.Float64Range(min, max)
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// CompanyName returns a plausible SME name.
func (g *TestDataGenerator) CompanyName() string {
	suffixes := []string{"S.L.", "S.A.", "S.L.U.", "S.Coop."}
	return g.faker.Company() + " " + suffixes[g.faker.Number(0, len(suffixes)-1)]
}

// ProfitLossCSV renders a semicolon-delimited income statement with one
// random amount per concept and year.
func (g *TestDataGenerator) ProfitLossCSV(concepts []string, years []int) string {
	var b strings.Builder
	b.WriteString("Concepto")
	for _, y := range years {
		fmt.Fprintf(&b, ";%d", y)
	}
	b.WriteString("\n")

	for _, concept := range concepts {
		b.WriteString(concept)
		for range years {
			fmt.Fprintf(&b, ";%.2f", g.RandomAmount(0, 500000))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// BalanceCSV renders a balance sheet whose sections satisfy the accounting
// identity for every year: assets equal equity plus liabilities.
func (g *TestDataGenerator) BalanceCSV(years []int) string {
	type line struct {
		concept string
		amounts []float64
	}

	assets := []string{"Inmovilizado material", "Existencias", "Efectivo y otros activos líquidos"}
	equity := []string{"Capital", "Reservas"}
	liabilities := []string{"Deudas a largo plazo", "Acreedores comerciales"}

	lines := make([]line, 0, len(assets)+len(equity)+len(liabilities))
	for _, c := range append(append(append([]string{}, assets...), equity...), liabilities...) {
		lines = append(lines, line{concept: c, amounts: make([]float64, len(years))})
	}

	for yi := range years {
		var assetTotal float64
		for i := range assets {
			v := g.RandomAmount(10000, 400000)
			lines[i].amounts[yi] = v
			assetTotal += v
		}

		// Split the asset total across the right-hand side so the
		// identity holds exactly.
		equityShare, _ := decimal.NewFromFloat(assetTotal).Mul(decimal.NewFromFloat(0.4)).Round(2).Float64()
		remainder, _ := decimal.NewFromFloat(assetTotal).Sub(decimal.NewFromFloat(equityShare)).Round(2).Float64()

		cap, _ := decimal.NewFromFloat(equityShare).Mul(decimal.NewFromFloat(0.75)).Round(2).Float64()
		lines[len(assets)].amounts[yi] = cap
		res, _ := decimal.NewFromFloat(equityShare).Sub(decimal.NewFromFloat(cap)).Round(2).Float64()
		lines[len(assets)+1].amounts[yi] = res

		long, _ := decimal.NewFromFloat(remainder).Mul(decimal.NewFromFloat(0.6)).Round(2).Float64()
		lines[len(assets)+len(equity)].amounts[yi] = long
		short, _ := decimal.NewFromFloat(remainder).Sub(decimal.NewFromFloat(long)).Round(2).Float64()
		lines[len(assets)+len(equity)+1].amounts[yi] = short
	}

	var b strings.Builder
	b.WriteString("Concepto")
	for _, y := range years {
		fmt.Fprintf(&b, ";%d", y)
	}
	b.WriteString("\n")

	writeSection := func(header string, from, to int) {
		b.WriteString(header)
		b.WriteString(strings.Repeat(";", len(years)))
		b.WriteString("\n")
		for _, l := range lines[from:to] {
			b.WriteString(l.concept)
			for _, v := range l.amounts {
				fmt.Fprintf(&b, ";%.2f", v)
			}
			b.WriteString("\n")
		}
	}

	writeSection("ACTIVO CORRIENTE", 0, len(assets))
	writeSection("PATRIMONIO NETO", len(assets), len(assets)+len(equity))
	writeSection("PASIVO CORRIENTE", len(assets)+len(equity), len(lines))
	return b.String()
}

// DebtPoolCSV renders a debt pool file with random lending entities.
func (g *TestDataGenerator) DebtPoolCSV(count int) string {
	kinds := []string{"Préstamo", "Póliza de crédito", "Leasing", "Hipoteca"}

	var b strings.Builder
	b.WriteString("Entidad;Tipo;Importe Inicial;Pendiente;Tipo Interes;Vencimiento\n")
	for i := 0; i < count; i++ {
		initial := g.RandomAmount(10000, 2000000)
		outstanding := g.RandomAmount(0, initial)
		due := g.faker.DateRange(time.Now(), time.Now().AddDate(10, 0, 0))
		fmt.Fprintf(&b, "%s;%s;%.2f;%.2f;%.2f;%s\n",
			g.faker.Company(),
			kinds[g.faker.Number(0, len(kinds)-1)],
			initial,
			outstanding,
			g.RandomAmount(0.5, 9),
			due.Format("02/01/2006"),
		)
	}
	return b.String()
}
