package apierr

import "strings"

// clientSafePatterns maps provider error fragments to messages safe to return to clients.
// Checked in order; the first match wins.
var clientSafePatterns = []struct {
	pattern string
	message string
}{
	{"rate limit", "rate limit exceeded"},
	{"429", "rate limit exceeded"},
	{"quota", "quota exceeded"},
	{"context dead", "request timed out"},
	{"timeout", "request timed out"},
	{"invalid api", "authentication failed with provider"},
	{"unauthorized", "authentication failed with provider"},
	{"401", "authentication failed with provider"},
	{"forbidden", "access denied by provider"},
}

// ClientMessage returns the message the transport shows for err.
// Failures that can carry server paths or provider internals are reduced to
// a per-code message, naming err.File when set. Not-found and invalid-request
// messages are written for clients and pass through.
func ClientMessage(err *Error) string {
	if err == nil {
		return ""
	}
	switch err.Code {
	case CodeGenerationFailed, CodeRequestTimeout:
		return generationMessage(err)
	case CodeUploadFailed:
		return withFile("error uploading file", err.File)
	case CodeExtractionFailed:
		return withFile("text extraction failed", err.File)
	case CodeExportFailed:
		return withFile("pdf export failed", err.File)
	case CodeInternal:
		return "internal server error"
	}
	return err.Error()
}

func withFile(message, file string) string {
	if file == "" {
		return message
	}
	return message + ": " + file
}

func generationMessage(err *Error) string {
	lower := strings.ToLower(err.Error())
	for _, p := range clientSafePatterns {
		if strings.Contains(lower, p.pattern) {
			return "generation failed: " + p.message
		}
	}
	if err.Code == CodeRequestTimeout {
		return "generation failed: request timed out"
	}
	return "generation failed: provider temporarily unavailable"
}
