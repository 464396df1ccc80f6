package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/fiscal-extractor/internal/async"
	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

func results() []async.Result {
	ok := entity.NewRawDocument([]byte("a"), "application/xml", "a.xml")
	bad := entity.NewRawDocument([]byte("b"), "image/png", "b.png")
	return []async.Result{
		{Job: async.Job{Document: ok}, Record: entity.FiscalRecord{RFCEmisor: entity.StringPtr("SEM950215S98")}, Elapsed: 12 * time.Millisecond},
		{Job: async.Job{Document: bad}, Err: common.Errorf(common.KindNoTextDetected, "blank image")},
	}
}

func TestLineWriter_OneLinePerResult(t *testing.T) {
	var buf bytes.Buffer
	lw := newLineWriter(&buf)
	for _, r := range results() {
		require.NoError(t, lw.Write(r))
	}

	sc := bufio.NewScanner(&buf)
	var lines []resultLine
	for sc.Scan() {
		var l resultLine
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l))
		lines = append(lines, l)
	}
	require.Len(t, lines, 2)

	assert.Equal(t, "a.xml", lines[0].File)
	assert.Equal(t, int64(12), lines[0].ElapsedMS)
	require.NotNil(t, lines[0].Record)
	assert.Equal(t, "SEM950215S98", *lines[0].Record.RFCEmisor)
	assert.Nil(t, lines[0].Error)

	assert.Nil(t, lines[1].Record)
	require.NotNil(t, lines[1].Error)
	assert.Equal(t, common.KindNoTextDetected, lines[1].Error.Kind)
}

func TestStoredRecords_SkipsFailures(t *testing.T) {
	got := storedRecords(results())
	require.Len(t, got, 1)
	assert.Equal(t, "a.xml", got[0].SourceFilename)
	assert.NotEmpty(t, got[0].DocumentID)
}
