package types

// ValidationError is the reason a downloaded artifact was rejected
type ValidationError string

const (
	ValidationNone        ValidationError = ""
	ValidationIntegrity   ValidationError = "integrity"
	ValidationFormat      ValidationError = "format"
	ValidationMetadata    ValidationError = "metadata"
	ValidationSignature   ValidationError = "signature"
	ValidationPermissions ValidationError = "permissions"
	ValidationNetwork     ValidationError = "network"
	ValidationUnknown     ValidationError = "unknown"
)

// Message returns the user facing text for the error kind
func (v ValidationError) Message() string {
	switch v {
	case ValidationIntegrity:
		return "integrity check failed"
	case ValidationFormat:
		return "invalid package format"
	case ValidationMetadata:
		return "package metadata mismatch"
	case ValidationSignature:
		return "signature mismatch"
	case ValidationPermissions:
		return "permissions mismatch"
	case ValidationNetwork:
		return "network error"
	case ValidationNone:
		return "download failed"
	default:
		return "unknown error"
	}
}

func (v ValidationError) String() string {
	if v == ValidationNone {
		return "none"
	}
	return string(v)
}
