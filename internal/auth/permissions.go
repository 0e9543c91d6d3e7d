package auth

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed permissions.yml
var defaultPermissions []byte

// Permissions maps role -> []permission
type Permissions map[string][]string

type permissionsFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadPermissions reads a permissions.yml file. An empty path loads the
// built-in defaults.
func LoadPermissions(path string) (Permissions, error) {
	b := defaultPermissions
	if path != "" {
		var err error
		if b, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read permissions: %w", err)
		}
	}
	return ParsePermissions(b)
}

func ParsePermissions(b []byte) (Permissions, error) {
	var pf permissionsFile
	if err := yaml.Unmarshal(b, &pf); err != nil {
		return nil, fmt.Errorf("parse permissions: %w", err)
	}
	perms := make(Permissions, len(pf.Roles))
	for role, list := range pf.Roles {
		perms[strings.ToUpper(role)] = list
	}
	return perms, nil
}

// Allows reports whether role carries permission. Role lookup is case-insensitive.
func (p Permissions) Allows(role Role, permission string) bool {
	return slices.Contains(p[strings.ToUpper(string(role))], permission)
}
