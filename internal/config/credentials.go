package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jgoulah/cpauscraper/internal/logger"
	"github.com/jgoulah/cpauscraper/pkg/models"
)

// LoadCredentials reads the JSON secrets file. Both "userid" and "password"
// must be present as non-empty strings.
func LoadCredentials(path string) (models.Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.Credentials{}, fmt.Errorf("secrets file not found: %s (create a JSON file with \"userid\" and \"password\" fields)", path)
		}
		return models.Credentials{}, fmt.Errorf("reading secrets file: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return models.Credentials{}, fmt.Errorf("invalid JSON in secrets file: %w", err)
	}

	var creds models.Credentials
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"userid", &creds.UserID},
		{"password", &creds.Password},
	} {
		v, ok := fields[f.name]
		if !ok {
			return models.Credentials{}, fmt.Errorf("secrets file must contain 'userid' and 'password' fields (missing %q)", f.name)
		}
		s, ok := v.(string)
		if !ok || s == "" {
			return models.Credentials{}, fmt.Errorf("secrets file field %q must be a non-empty string", f.name)
		}
		*f.dst = s
	}

	logger.CfgLog.Debugf("loaded credentials for %s", creds.UserID)
	return creds, nil
}
