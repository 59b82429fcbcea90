package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "", MaskToken(""))
	assert.Equal(t, "***", MaskToken("short"))
	assert.Equal(t, "***", MaskToken("twelve-chars"))
	assert.Equal(t, "eyJh***sig0", MaskToken("eyJhbGciOiJIUzI1NiJ9.payload.sig0"))
}
