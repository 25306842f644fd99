package common

import "strings"

const maskPrefix = "****"

// MaskSecret keeps at most the last four characters of a long secret.
// Short values are fully masked.
func MaskSecret(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskPrefix
	}
	return maskPrefix + s[len(s)-4:]
}

// MaskAuthorization masks the credential part of an Authorization header, keeping the scheme.
func MaskAuthorization(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	scheme, cred, ok := strings.Cut(header, " ")
	if !ok {
		return MaskSecret(header)
	}
	return scheme + " " + MaskSecret(cred)
}

// Presence reports whether a secret is configured without revealing any of it.
func Presence(s string) string {
	if strings.TrimSpace(s) == "" {
		return "missing"
	}
	return "set"
}
