package pdf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPasswordError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("invalid password provided"), true},
		{errors.New("file is Encrypted"), true},
		{errors.New("failed to decrypt file"), true},
		{errors.New("authentication failed"), true},
		{fmt.Errorf("open: %w", ErrEncrypted), true},
		{errors.New("file not found"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsPasswordError(tt.err), "%v", tt.err)
	}
}

func TestIsEncrypted_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	encrypted, err := IsEncrypted(path)
	require.Error(t, err)
	assert.False(t, encrypted)
}

func TestDecrypt_InvalidFile(t *testing.T) {
	_, err := Decrypt("/non/existent/file.pdf", "secret")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEncrypted)
}
