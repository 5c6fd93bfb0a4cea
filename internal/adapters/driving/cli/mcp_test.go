package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiovideoron/distillyzer/internal/adapters/driving/mcp"
)

func TestMCPCmd_Structure(t *testing.T) {
	assert.Equal(t, "mcp", mcpCmd.Use)
	assert.Equal(t, "serve", mcpServeCmd.Use)
	assert.Equal(t, mcpCmd, mcpServeCmd.Parent())
}

func TestMCPServeCmd_PortFlag(t *testing.T) {
	flag := mcpServeCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "p", flag.Shorthand)
	assert.Equal(t, "0", flag.DefValue)
}

func TestMCPServeCmd_NeedsServices(t *testing.T) {
	assert.Equal(t, "true", mcpServeCmd.Annotations[annotationServices])
}

func TestMCPServeCmd_WithoutQueryService(t *testing.T) {
	SetServices(nil)

	_, err := execute(t, "mcp", "serve")

	assert.ErrorIs(t, err, mcp.ErrMissingQueryService)
}
