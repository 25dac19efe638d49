package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_DisabledIsNoop(t *testing.T) {
	tel, err := Setup(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, tel)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestParseHeaders(t *testing.T) {
	h := parseHeaders("authorization=Bearer x, x-team = tutors,broken")
	assert.Equal(t, map[string]string{
		"authorization": "Bearer x",
		"x-team":        "tutors",
	}, h)
	assert.Empty(t, parseHeaders(""))
}
