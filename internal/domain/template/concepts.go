package template

// PGCProfitLossConcepts is the whitelist of permitted P&L line items,
// following the Plan General de Contabilidad abbreviated income statement.
// Uploaded cuenta-pyg rows must use one of these labels.
var PGCProfitLossConcepts = []string{
	"Importe neto de la cifra de negocios",
	"Variación de existencias de productos terminados y en curso",
	"Trabajos realizados por la empresa para su activo",
	"Aprovisionamientos",
	"Otros ingresos de explotación",
	"Gastos de personal",
	"Otros gastos de explotación",
	"Amortización del inmovilizado",
	"Imputación de subvenciones de inmovilizado no financiero",
	"Excesos de provisiones",
	"Deterioro y resultado por enajenaciones del inmovilizado",
	"Otros resultados",
	"Ingresos financieros",
	"Gastos financieros",
	"Variación de valor razonable en instrumentos financieros",
	"Diferencias de cambio",
	"Deterioro y resultado por enajenaciones de instrumentos financieros",
	"Impuesto sobre beneficios",
	"Resultado del ejercicio",
}

// BalanceSectionHeaders are the recognized balance-sheet section labels, in
// statement order. A row whose concept equals one of these switches the
// current section and emits no data.
var BalanceSectionHeaders = []string{
	"ACTIVO NO CORRIENTE",
	"ACTIVO CORRIENTE",
	"PATRIMONIO NETO",
	"PASIVO NO CORRIENTE",
	"PASIVO CORRIENTE",
}

// SectionKind maps a section header to its balance-sheet side
func SectionKind(header string) string {
	switch header {
	case "ACTIVO NO CORRIENTE", "ACTIVO CORRIENTE":
		return "asset"
	case "PATRIMONIO NETO":
		return "equity"
	case "PASIVO NO CORRIENTE", "PASIVO CORRIENTE":
		return "liability"
	}
	return ""
}
