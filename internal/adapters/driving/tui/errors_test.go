package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrors_AreDistinct(t *testing.T) {
	assert.NotErrorIs(t, ErrMissingQueryService, ErrInvalidPorts)
}

func TestErrMissingQueryService_Message(t *testing.T) {
	assert.Equal(t, "tui: query service is required", ErrMissingQueryService.Error())
}

func TestErrInvalidPorts_Message(t *testing.T) {
	assert.Equal(t, "tui: invalid ports configuration", ErrInvalidPorts.Error())
}
