// Package dotenv loads local .env files before configuration is parsed.
package dotenv

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// FileEnvVar names an alternate env file to load instead of ".env".
const FileEnvVar = "CALLBRIDGE_ENV_FILE"

// LoadFile loads KEY=VALUE pairs from a dotenv-style file into the process
// environment. Existing environment variables are preserved and a missing
// file is not an error.
func LoadFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

// LoadDefault loads the file named by CALLBRIDGE_ENV_FILE, falling back to
// fallback when the variable is unset. An explicitly named file must exist.
func LoadDefault(fallback string) error {
	if path := strings.TrimSpace(os.Getenv(FileEnvVar)); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %q: %w", path, err)
		}
		return nil
	}
	return LoadFile(fallback)
}
