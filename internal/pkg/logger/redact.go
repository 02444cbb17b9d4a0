package logger

import "strings"

// sensitiveKeys are substrings of field names whose values must never be
// logged verbatim (webhook signing secrets, API keys, connection strings).
var sensitiveKeys = []string{"secret", "token", "api_key", "apikey", "password", "dsn"}

// RedactSecret masks a credential for safe logging, keeping a short prefix
// so operators can distinguish keys: "whsec_a1b2c3d4e5" -> "whse***".
func RedactSecret(v string) string {
	if len(v) <= 4 {
		return "***"
	}
	return v[:4] + "***"
}

func redactSecretValue(key, val string) string {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return RedactSecret(val)
		}
	}
	return val
}
