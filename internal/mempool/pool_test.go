package mempool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeClass(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{"small size gets minimum", 1, 1024},
		{"exactly 1024", 1024, 1024},
		{"just over 1024", 1025, 2048},
		{"exact multiple", 4096, 4096},
		{"page sized", 1920 * 1080, 2073600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sizeClass(tt.input))
		})
	}
}

func TestGetReturnsZeroedBuffers(t *testing.T) {
	buf := GetBool(3000)
	require.Len(t, buf, 3000)
	assert.Equal(t, 3072, cap(buf))
	for i := range buf {
		buf[i] = true
	}
	PutBool(buf)

	// Whether or not the pool hands back the same backing array, it must be clean.
	again := GetBool(2500)
	require.Len(t, again, 2500)
	for i, v := range again {
		require.False(t, v, "index %d", i)
	}
	PutBool(again)

	labels := GetInt(10)
	labels[3] = 7
	PutInt(labels)
	assert.Equal(t, make([]int, 10), GetInt(10))
}

func TestGetNonPositive(t *testing.T) {
	assert.Nil(t, GetFloat64(0))
	assert.Nil(t, GetFloat32(-1))
}

func TestPutIgnoresForeignSlices(t *testing.T) {
	assert.NotPanics(t, func() {
		PutFloat64(nil)
		PutFloat64(make([]float64, 10))
		PutBool(make([]bool, 0, 1500))
	})
	buf := GetFloat64(10)
	assert.Len(t, buf, 10)
	assert.Equal(t, 1024, cap(buf))
}

func TestConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				n := 500 + (g*131+i*17)%5000
				buf := GetFloat32(n)
				if len(buf) != n {
					t.Errorf("got len %d, want %d", len(buf), n)
					return
				}
				for j := range buf {
					if buf[j] != 0 {
						t.Errorf("buffer not zeroed at %d", j)
						return
					}
					buf[j] = float32(j)
				}
				PutFloat32(buf)
			}
		}()
	}
	wg.Wait()
}
