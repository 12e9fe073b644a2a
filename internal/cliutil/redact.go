package cliutil

import (
	"regexp"
)

const redactedPlaceholder = "[redacted]"

// secretSuffix matches variable names the worker config uses for
// credentials: tokens, secrets, API keys and personal access tokens.
const secretSuffix = `(?:TOKEN|SECRET|PASSWORD|API_KEY|SECRET_KEY|PAT_VALUE)`

var (
	templateVarPattern = regexp.MustCompile(`\$\{[^}]+\}`)
	secretNamePattern  = regexp.MustCompile(`(?i)^[A-Z0-9_]*` + secretSuffix + `$`)
	secretKeyPattern   = regexp.MustCompile(`(?i)\b([A-Z0-9_]*` + secretSuffix + `)\b(\s*[:=]\s*)(["']?)([^"'\s]+)(["']?)`)
)

// IsSecretKey reports whether a variable name holds a credential.
func IsSecretKey(key string) bool {
	return secretNamePattern.MatchString(key)
}

// RedactValue masks value when key names a credential. Empty values are
// left alone so unset secrets stay visible as unset.
func RedactValue(key, value string) string {
	if value == "" || !IsSecretKey(key) {
		return value
	}
	return redactedPlaceholder
}

// RedactSecrets masks ${VAR} template references and credential
// assignments such as SLACK_BOT_TOKEN=xoxb-... in free text.
func RedactSecrets(message string) string {
	if message == "" {
		return message
	}
	redacted := templateVarPattern.ReplaceAllStringFunc(message, func(match string) string {
		return "${" + redactedPlaceholder + "}"
	})
	return secretKeyPattern.ReplaceAllString(redacted, "$1$2$3"+redactedPlaceholder+"$5")
}
