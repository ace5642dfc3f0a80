package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWipeByteArray(t *testing.T) {
	buf := []byte("secret-password")
	WipeByteArray(buf)
	assert.Equal(t, make([]byte, len("secret-password")), buf)

	assert.NotPanics(t, func() { WipeByteArray(nil) })
}
