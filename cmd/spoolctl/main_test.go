package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novaspool/internal/gologger"
	"github.com/tuannm99/novaspool/internal/record"
)

func memOpen(released *bool) openFunc {
	return func(context.Context, *viper.Viper) (record.RowProducer, func(), error) {
		cols := []record.Column{
			record.NewColumn("id", "int"),
			record.NewColumn("name", "nvarchar"),
		}
		rows := [][]any{
			{int32(1), "ann"},
			{int32(2), "bob"},
			{int32(3), nil},
		}
		return record.NewSliceProducer(cols, rows), func() { *released = true }, nil
	}
}

func TestRun_ExportCSV(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.csv")
	var released bool

	err := run(context.Background(), []string{
		"--out", out,
		"--format", "csv",
		"--headers",
		"--spool-dir", filepath.Join(dir, "spool"),
		"--row-start", "1",
	}, &bytes.Buffer{}, memOpen(&released))
	require.NoError(t, err)
	assert.True(t, released)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n2,bob\n3,NULL\n", string(b))

	spooled, err := os.ReadDir(filepath.Join(dir, "spool"))
	require.NoError(t, err)
	assert.Empty(t, spooled)
}

func TestRun_CopyInClause(t *testing.T) {
	var released bool
	var stdout bytes.Buffer
	err := run(context.Background(), []string{
		"--copy", "in-clause",
		"--spool-dir", t.TempDir(),
	}, &stdout, memOpen(&released))
	require.Error(t, err, "in-clause over both columns")

	stdout.Reset()
	err = run(context.Background(), []string{"--copy", "text", "--spool-dir", t.TempDir()}, &stdout, memOpen(&released))
	require.NoError(t, err)
	assert.Equal(t, "1\tann\n2\tbob\n3\tNULL\n", stdout.String())
}

func TestRun_CopyOutputCarriesNoLogs(t *testing.T) {
	var logs bytes.Buffer
	prev := gologger.SetOutput(&logs)
	t.Cleanup(func() { gologger.SetOutput(prev) })

	var released bool
	var stdout bytes.Buffer
	err := run(context.Background(), []string{
		"--copy", "text",
		"--spool-dir", t.TempDir(),
	}, &stdout, memOpen(&released))
	require.NoError(t, err)

	assert.Equal(t, "1\tann\n2\tbob\n3\tNULL\n", stdout.String())
	assert.NotContains(t, stdout.String(), `"level"`)
	assert.Contains(t, logs.String(), `"level"`)
}

func TestRun_RequiresOutput(t *testing.T) {
	var released bool
	err := run(context.Background(), nil, &bytes.Buffer{}, memOpen(&released))
	assert.Error(t, err)
	assert.False(t, released)
}

func TestRun_UnknownFormat(t *testing.T) {
	var released bool
	err := run(context.Background(), []string{
		"--out", filepath.Join(t.TempDir(), "x"),
		"--format", "yaml",
		"--spool-dir", t.TempDir(),
	}, &bytes.Buffer{}, memOpen(&released))
	assert.Error(t, err)
}
