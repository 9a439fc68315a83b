package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageKey(t *testing.T) {
	assert.Equal(t, "items:page:0:10", PageKey(0, 10))
	assert.Equal(t, "items:page:20:5", PageKey(20, 5))
}
