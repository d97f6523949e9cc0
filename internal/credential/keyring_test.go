package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_EnvOverride(t *testing.T) {
	t.Setenv(TokenEnv, "  secret-from-env ")

	tok, err := Token()
	require.NoError(t, err)
	assert.Equal(t, "secret-from-env", tok)
}
