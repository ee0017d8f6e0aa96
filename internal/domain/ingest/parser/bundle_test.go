package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/template"
)

func TestCheckBundle(t *testing.T) {
	t.Run("required files only", func(t *testing.T) {
		files := map[string][]byte{
			"cuenta-pyg.csv":        []byte("Concepto;2023"),
			"balance-situacion.csv": []byte("Concepto;2023"),
		}
		bundle, err := CheckBundle(files)
		require.NoError(t, err)
		require.Len(t, bundle, 2)
		assert.Equal(t, "balance-situacion.csv", bundle[0].Filename)
		assert.Equal(t, template.NameBalanceSheet, bundle[0].TemplateName)
		assert.Equal(t, template.NameProfitLoss, bundle[1].TemplateName)
	})

	t.Run("optional files accepted", func(t *testing.T) {
		files := map[string][]byte{
			"cuenta-pyg.csv":        {},
			"balance-situacion.csv": {},
			"pool-deuda.csv":        {},
			"info-empresa.csv":      {},
		}
		bundle, err := CheckBundle(files)
		require.NoError(t, err)
		assert.Len(t, bundle, 4)
	})

	t.Run("missing required file rejected", func(t *testing.T) {
		files := map[string][]byte{
			"cuenta-pyg.csv": {},
		}
		_, err := CheckBundle(files)
		require.ErrorIs(t, err, ErrMissingRequiredFiles)
		assert.Contains(t, err.Error(), "balance-situacion.csv")
	})

	t.Run("unknown filename rejected", func(t *testing.T) {
		files := map[string][]byte{
			"cuenta-pyg.csv":        {},
			"balance-situacion.csv": {},
			"cuenta-pyg-2023.csv":   {},
		}
		_, err := CheckBundle(files)
		require.ErrorIs(t, err, ErrUnknownBundleFile)
		assert.Contains(t, err.Error(), "cuenta-pyg-2023.csv")
	})
}

func TestTemplateForFilename(t *testing.T) {
	name, ok := TemplateForFilename("POOL-DEUDA.CSV")
	assert.True(t, ok)
	assert.Equal(t, template.NameDebtPool, name)

	_, ok = TemplateForFilename("resumen.csv")
	assert.False(t, ok)
}

func TestParseDebtPool(t *testing.T) {
	data := []byte("Entidad,Tipo,Importe Inicial,Pendiente,Tipo Interes,Vencimiento\n" +
		"Banco Santander,Préstamo,100000,75000,3.5,2028-06-30\n" +
		"BBVA,Póliza de crédito,50000,20000,4.2,2026-12-31\n")

	records, err := ParseDebtPool(data, ',')
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Banco Santander", records[0].Entity)
	assert.Equal(t, 100000.0, records[0].Initial)
	assert.Equal(t, 75000.0, records[0].Outstanding)
	assert.Equal(t, 3.5, records[0].InterestRate)
	assert.Equal(t, "2028-06-30", records[0].Maturity)
	assert.Equal(t, "BBVA", records[1].Entity)
}

func TestParseDebtPoolSemicolon(t *testing.T) {
	data := []byte("Entidad;Tipo;Importe Inicial;Pendiente;Tipo Interes;Vencimiento\n" +
		"CaixaBank;Leasing;30000;12000;2.9;2027-03-31\n")

	records, err := ParseDebtPool(data, ';')
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "CaixaBank", records[0].Entity)
	assert.Equal(t, 12000.0, records[0].Outstanding)
}

func TestIsExcel(t *testing.T) {
	assert.True(t, IsExcel("balance.XLSX"))
	assert.True(t, IsExcel("balance.xlsm"))
	assert.False(t, IsExcel("balance.csv"))
}
