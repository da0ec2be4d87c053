// Package security provides security-related checks for configured release
// commands.
package security

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var dangerousPatterns = []*regexp.Regexp{
	// Destructive filesystem ops
	regexp.MustCompile(`(?i)\brm\s+-rf\s+/?$`),
	regexp.MustCompile(`(?i)\brm\s+-rf\s+/`),
	regexp.MustCompile(`(?i)\bmkfs\b`),
	regexp.MustCompile(`(?i)\bdd\s+if=`),
	// fork bombs (e.g. :(){ :|:& };:)
	regexp.MustCompile(`:\(\)\s*\{`),
	regexp.MustCompile(`(?i)\bwipefs\b`),
}

// credentialParams are placeholder names that would put a credential on a
// command line, where process listings and logs can see it.
var credentialParams = regexp.MustCompile(`(?i){{\s*(token|credential|password|secret|api[_-]?key)\s*}}`)

// inlineCredential matches build-tool invocations that set a token as an
// argument, e.g. `poetry config pypi-token.pypi <value>` or `--password x`.
var inlineCredential = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bconfig\s+pypi-token\.`),
	regexp.MustCompile(`(?i)(^|\s)(--password|--token|--api-token)(\s|=)`),
}

// CheckAllowed returns nil if the command is allowed to run, or an error
// describing why it's blocked. Checking is conservative and not exhaustive.
func CheckAllowed(command string) error {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return errors.New("empty command")
	}
	for _, re := range dangerousPatterns {
		if re.MatchString(cmd) {
			return errors.New("command appears destructive or unsafe")
		}
	}
	return nil
}

// CheckTemplate validates a configured command template. On top of
// CheckAllowed it rejects templates that would pass a credential through
// argv; the publish credential only ever travels through the environment.
func CheckTemplate(template string) error {
	if err := CheckAllowed(template); err != nil {
		return err
	}
	if m := credentialParams.FindString(template); m != "" {
		return fmt.Errorf("command references credential placeholder %s; credentials are passed via environment", m)
	}
	for _, re := range inlineCredential {
		if re.MatchString(template) {
			return errors.New("command passes a credential as an argument; credentials are passed via environment")
		}
	}
	return nil
}
