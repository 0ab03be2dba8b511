package pdf

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrEncrypted is returned when a document is encrypted and cannot be opened
// with the configured password.
var ErrEncrypted = errors.New("pdf is encrypted")

// IsEncrypted reports whether the document needs a password to be read.
func IsEncrypted(path string) (bool, error) {
	_, err := api.PageCountFile(path)
	if err == nil {
		return false, nil
	}
	if IsPasswordError(err) {
		return true, nil
	}
	return false, fmt.Errorf("failed to check PDF encryption status: %w", err)
}

// Decrypt writes a decrypted copy of path to a temporary file and returns
// its path. The password is tried as both user and owner password. The
// caller removes the returned file.
func Decrypt(path, password string) (string, error) {
	conf := model.NewDefaultConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password

	tmp, err := os.CreateTemp("", "elscan-decrypted-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	_ = tmp.Close()

	if err := api.DecryptFile(path, tmp.Name(), conf); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: %w", ErrEncrypted, err)
	}
	return tmp.Name(), nil
}

// IsPasswordError checks if an error is related to password/encryption issues.
func IsPasswordError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrEncrypted) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, keyword := range []string{"password", "encrypted", "decrypt", "authentication", "invalid credentials"} {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}
	return false
}
