package registry

import (
	"sync"
	"testing"

	"github.com/jgivc/modserver/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := New()
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Names())

	_, known := r.Get("main")
	assert.False(t, known)

	r.Register("main")
	data, known := r.Get("main")
	assert.True(t, known)
	assert.Nil(t, data)

	published := &entity.BranchData{Zip: entity.ZipData{IsPresent: true, Size: 1}}
	r.Set("main", published)
	r.Register("main")

	data, known = r.Get("main")
	require.True(t, known)
	assert.Same(t, published, data, "register must not reset published data")

	r.Set("dev", nil)
	assert.Equal(t, []string{"dev", "main"}, r.Names())
	assert.Equal(t, 2, r.Len())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Set("main", &entity.BranchData{})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Get("main")
				r.Names()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, r.Len())
}
