package ocr

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/vidtutor/internal/media"
)

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t1280\t720\t-1\t\n" +
	"4\t1\t1\t1\t1\t0\t40\t30\t600\t40\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t40\t30\t200\t40\t96.5\tQuicksort:\n" +
	"5\t1\t1\t1\t1\t2\t250\t30\t120\t40\t91.0\tpivot\n" +
	"5\t1\t1\t1\t1\t3\t380\t30\t200\t40\t88.5\tselection\n" +
	"5\t1\t2\t1\t1\t1\t40\t200\t300\t40\t80.0\tpivot=arr[hi]\n" +
	"5\t1\t2\t1\t1\t2\t40\t200\t300\t40\t-1\t \n"

func TestParseTSV(t *testing.T) {
	res, err := parseTSV([]byte(sampleTSV))
	require.NoError(t, err)
	assert.Equal(t, "Quicksort: pivot selection\npivot=arr[hi]", res.Text)
	assert.InDelta(t, (96.5+91+88.5+80)/4/100, res.Confidence, 1e-9)
}

func TestParseTSV_NoWords(t *testing.T) {
	res, err := parseTSV([]byte("level\tpage_num\n1\t1\t0\t0\t0\t0\t0\t0\t1280\t720\t-1\t\n"))
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Zero(t, res.Confidence)
}

type stubRunner struct {
	stdout string
	err    error
	args   []string
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) (media.Output, error) {
	s.args = append([]string{name}, args...)
	return media.Output{Stdout: []byte(s.stdout)}, s.err
}

func TestTesseractEngine(t *testing.T) {
	r := &stubRunner{stdout: sampleTSV}
	e := &TesseractEngine{Binary: "tesseract", Language: "eng", Runner: r}

	res, err := e.Recognize(context.Background(), "frame_000001.png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Text, "Quicksort"))
	assert.Equal(t, []string{"tesseract", "frame_000001.png", "stdout", "-l", "eng", "--psm", "11", "tsv"}, r.args)

	r.err = errors.New("exit status 1")
	_, err = e.Recognize(context.Background(), "frame_000001.png")
	assert.Error(t, err)
}
