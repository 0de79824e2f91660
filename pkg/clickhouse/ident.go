package clickhouse

import (
	"fmt"
	"strings"
)

// Ident validates a table, column or database name and returns it backtick-quoted.
// Only ASCII letters, digits and underscores are accepted, starting with a letter or underscore.
func Ident(name string) (string, error) {
	if name == "" || len(name) > 128 {
		return "", fmt.Errorf("clickhouse: invalid identifier %q", name)
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return "", fmt.Errorf("clickhouse: invalid identifier %q", name)
		}
	}
	return "`" + name + "`", nil
}

// QualifiedTable quotes a table name that may carry a database prefix.
func QualifiedTable(name string) (string, error) {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("clickhouse: invalid table name %q", name)
	}
	for i, p := range parts {
		q, err := Ident(p)
		if err != nil {
			return "", err
		}
		parts[i] = q
	}
	return strings.Join(parts, "."), nil
}
