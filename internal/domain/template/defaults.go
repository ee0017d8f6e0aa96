package template

import "github.com/google/uuid"

// Canonical template names recognized in the multi-file upload bundle
const (
	NameProfitLoss      = "cuenta-pyg"
	NameBalanceSheet    = "balance-situacion"
	NameDebtPool        = "pool-deuda"
	NameDebtMaturities  = "pool-deuda-vencimientos"
	NameCashflow        = "estado-flujos"
	NameOperational     = "datos-operativos"
	NameAssumptions     = "supuestos-financieros"
	NameCompanyInfo     = "info-empresa"
	NameFinancialRatios = "ratios-financieros"
)

func fptr(f float64) *float64 { return &f }

// Defaults returns the built-in base schemas seeded on first run.
// Administrators version these through the repository afterwards.
func Defaults() []*Schema {
	concept := Column{Name: "Concepto", Type: ColumnText, Required: true}
	notes := Column{Name: "Notas", Type: ColumnText, Required: false}

	return []*Schema{
		{
			ID:          uuid.New(),
			Name:        NameProfitLoss,
			DisplayName: "Cuenta de Pérdidas y Ganancias",
			Version:     1,
			Category:    "estados-financieros",
			IsActive:    true,
			Definition: Definition{
				Columns:             []Column{concept, notes},
				VariableYearColumns: true,
				YearColumnPattern:   DefaultYearPattern,
				ExpectedConcepts:    PGCProfitLossConcepts,
				Rules: []ValidationRule{
					{
						Type:     RuleCalculationCheck,
						Severity: SeverityWarning,
						Message:  "la cuenta de PyG no debe incluir métricas derivadas (EBITDA, márgenes, ratios)",
					},
				},
			},
		},
		{
			ID:          uuid.New(),
			Name:        NameBalanceSheet,
			DisplayName: "Balance de Situación",
			Version:     1,
			Category:    "estados-financieros",
			IsActive:    true,
			Definition: Definition{
				Columns:             []Column{concept, notes},
				VariableYearColumns: true,
				YearColumnPattern:   DefaultYearPattern,
				Rules: []ValidationRule{
					{
						Type:     RuleBalanceCheck,
						Severity: SeverityError,
						Message:  "el activo debe igualar pasivo más patrimonio neto",
					},
				},
			},
		},
		{
			ID:          uuid.New(),
			Name:        NameDebtPool,
			DisplayName: "Pool de Deuda",
			Version:     1,
			Category:    "deuda",
			IsActive:    true,
			Definition: Definition{
				Columns: []Column{
					{Name: "Entidad", Type: ColumnText, Required: true},
					{Name: "Tipo", Type: ColumnText, Required: true},
					{Name: "Importe Inicial", Type: ColumnNumber, Required: true, Rules: []ValidationRule{
						{Type: RuleRange, Severity: SeverityError, Min: fptr(0), Message: "el importe inicial no puede ser negativo"},
					}},
					{Name: "Pendiente", Type: ColumnNumber, Required: true, Rules: []ValidationRule{
						{Type: RuleRange, Severity: SeverityError, Min: fptr(0), Message: "el importe pendiente no puede ser negativo"},
					}},
					{Name: "Tipo Interes", Type: ColumnNumber, Required: false, Rules: []ValidationRule{
						{Type: RuleRange, Severity: SeverityWarning, Min: fptr(0), Max: fptr(30), Message: "tipo de interés fuera del rango habitual"},
					}},
					{Name: "Vencimiento", Type: ColumnDate, Required: false},
				},
			},
		},
		{
			ID:          uuid.New(),
			Name:        NameDebtMaturities,
			DisplayName: "Vencimientos Pool de Deuda",
			Version:     1,
			Category:    "deuda",
			IsActive:    true,
			Definition: Definition{
				Columns: []Column{
					{Name: "Entidad", Type: ColumnText, Required: true},
				},
				VariableYearColumns: true,
				YearColumnPattern:   DefaultYearPattern,
			},
		},
		{
			ID:          uuid.New(),
			Name:        NameCashflow,
			DisplayName: "Estado de Flujos de Efectivo",
			Version:     1,
			Category:    "estados-financieros",
			IsActive:    true,
			Definition: Definition{
				Columns:             []Column{concept, notes},
				VariableYearColumns: true,
				YearColumnPattern:   DefaultYearPattern,
			},
		},
		{
			ID:          uuid.New(),
			Name:        NameOperational,
			DisplayName: "Datos Operativos",
			Version:     1,
			Category:    "operativo",
			IsActive:    true,
			Definition: Definition{
				Columns:             []Column{concept},
				VariableYearColumns: true,
				YearColumnPattern:   DefaultYearPattern,
			},
		},
		{
			ID:          uuid.New(),
			Name:        NameAssumptions,
			DisplayName: "Supuestos Financieros",
			Version:     1,
			Category:    "supuestos",
			IsActive:    true,
			Definition: Definition{
				Columns: []Column{
					concept,
					{Name: "Valor", Type: ColumnNumber, Required: true},
					{Name: "Unidad", Type: ColumnText, Required: false},
				},
			},
		},
		{
			ID:          uuid.New(),
			Name:        NameCompanyInfo,
			DisplayName: "Información de Empresa",
			Version:     1,
			Category:    "empresa",
			IsActive:    true,
			Definition: Definition{
				Columns: []Column{
					{Name: "Campo", Type: ColumnText, Required: true},
					{Name: "Valor", Type: ColumnText, Required: true},
					{Name: "Email Contacto", Type: ColumnEmail, Required: false},
					{Name: "Web", Type: ColumnURL, Required: false},
				},
			},
		},
		{
			ID:          uuid.New(),
			Name:        NameFinancialRatios,
			DisplayName: "Ratios Financieros",
			Version:     1,
			Category:    "ratios",
			IsActive:    true,
			Definition: Definition{
				Columns:             []Column{concept},
				VariableYearColumns: true,
				YearColumnPattern:   DefaultYearPattern,
			},
		},
	}
}
