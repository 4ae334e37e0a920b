package csvfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/victor-cakess/hometown/internal/domain"
)

func TestWriteTable_Format(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "aerogeradores_consolidado_20240501_120000.csv")
	tbl := domain.NewTable("latitude", "longitude", "NOME_EOL", "POT_MW", "ALT_TOTAL", "OPERACAO", "DATA_ATUALIZACAO")
	tbl.Append([]any{-5.2, -36.123456789, "Ventos, de Santa Luzia", 2.1, int64(120), "Sim", "2024-05-01"})
	tbl.Append([]any{-3.0, -39.0, nil, 999.999, nil, "Não", nil})

	require.NoError(t, NewStore().WriteTable(path, tbl))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "latitude,longitude,NOME_EOL,POT_MW,ALT_TOTAL,OPERACAO,DATA_ATUALIZACAO\n" +
		"-5.200000,-36.123457,\"Ventos, de Santa Luzia\",2.100000,120,Sim,2024-05-01\n" +
		"-3.000000,-39.000000,,999.999000,,Não,\n"
	assert.Equal(t, want, string(data))
}

func TestCountRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	tbl := domain.NewTable("CEG", "NOME_EOL")
	tbl.Append([]any{"a", "line one\nline two"})
	tbl.Append([]any{"b", "x"})
	require.NoError(t, NewStore().WriteTable(path, tbl))

	n, err := NewStore().CountRows(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCountRows_EmptyAndMissing(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	n, err := NewStore().CountRows(empty)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = NewStore().CountRows(filepath.Join(dir, "missing.csv"))
	require.ErrorIs(t, err, domain.ErrProcessing)
}

func TestReadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	require.NoError(t, os.WriteFile(path, []byte("latitude,CEG,NOME_EOL\n-5.200000,EOL1,\n"), 0o644))

	tbl, err := NewStore().ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"latitude", "CEG", "NOME_EOL"}, tbl.Columns)
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, []any{"-5.200000", "EOL1", nil}, tbl.Rows[0])
}
