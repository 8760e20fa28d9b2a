package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab/controller/internal/core/controllererr"
)

func TestPortAllocator_AllocateReleaseReuse(t *testing.T) {
	p := newPortAllocator(20000, 2)

	a, err := p.allocate()
	require.NoError(t, err)

	b, err := p.allocate()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	p.release(a)
	c, err := p.allocate()
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestPortAllocator_ExhaustionIsResourceExhaustion(t *testing.T) {
	p := newPortAllocator(21000, 2)

	_, err := p.allocate()
	require.NoError(t, err)
	_, err = p.allocate()
	require.NoError(t, err)

	_, err = p.allocate()
	require.Error(t, err)
	assert.Equal(t, controllererr.KindResourceExhaustion, controllererr.KindOf(err))
}
