package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fpang/hair-diagnosis-helper/internal/auth"
)

// ResolveOutputDir creates dirPath if needed and returns its absolute path.
func ResolveOutputDir(dirPath string) (string, error) {
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	info, err := os.Stat(dirPath)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dirPath)
	}
	if abs, err := filepath.Abs(dirPath); err == nil {
		dirPath = abs
	}
	return dirPath, nil
}

// DescribeValidationError turns an API key check failure into advice.
func DescribeValidationError(credential string, err error) string {
	var validationErr *auth.ValidationError
	if !errors.As(err, &validationErr) {
		return fmt.Sprintf("%s: unexpected error during validation: %v", credential, err)
	}
	switch validationErr.Type {
	case auth.ErrTypeNoKey:
		return fmt.Sprintf("%s: not configured. Set it in the environment, a .env file, or SSM", credential)
	case auth.ErrTypeInvalidKey:
		return fmt.Sprintf("%s: invalid. Please check the key and try again", credential)
	case auth.ErrTypeNetworkError:
		return fmt.Sprintf("%s: network error. Please check your internet connection", credential)
	case auth.ErrTypeQuotaExceeded:
		return fmt.Sprintf("%s: quota exceeded. Please try again later or check your usage limits", credential)
	default:
		return fmt.Sprintf("%s: validation failed: %v", credential, err)
	}
}
