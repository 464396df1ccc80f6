package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "tarjeta de debito", Fold("Tarjeta de DÉBITO"))
	assert.Equal(t, "emision", Fold("EMISIÓN"))
	assert.Equal(t, "", Fold(""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "abc", Truncate("abc", 10))
	// "ñ" is two bytes; cutting inside it backs off to the rune start.
	assert.Equal(t, "a", Truncate("añb", 2))
}
