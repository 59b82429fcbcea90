package utils

// MaskToken keeps the first and last four characters of a credential and hides the rest.
// Short values are masked entirely.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "***" + token[len(token)-4:]
}
