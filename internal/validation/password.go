package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nbutton23/zxcvbn-go"

	"github.com/TheMichaelB/vaultseal/internal/config"
)

// ErrWeakPassword is returned by Result.Err when a critical issue was found.
var ErrWeakPassword = errors.New("password does not meet policy")

// weakPatterns are rejected as substrings, case-insensitively.
var weakPatterns = []string{"password", "12345678", "qwerty123", "admin123", "letmein", "changeme"}

// Severity of a policy finding.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// Issue is a single policy finding.
type Issue struct {
	Field      string   `json:"field"`
	Message    string   `json:"message"`
	Severity   Severity `json:"severity"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Result collects the findings for one password.
type Result struct {
	Issues   []Issue  `json:"issues,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	// Score is the zxcvbn estimate, 0 (guessable) to 4 (very strong).
	Score     int    `json:"score"`
	CrackTime string `json:"crack_time"`
}

// Valid reports whether no critical issue was found.
func (r *Result) Valid() bool {
	for _, is := range r.Issues {
		if is.Severity == SeverityCritical {
			return false
		}
	}
	return true
}

// Err returns ErrWeakPassword wrapped with the first critical message, or nil.
func (r *Result) Err() error {
	for _, is := range r.Issues {
		if is.Severity == SeverityCritical {
			return fmt.Errorf("%w: %s", ErrWeakPassword, is.Message)
		}
	}
	return nil
}

// Messages flattens issues and warnings for display.
func (r *Result) Messages() []string {
	out := make([]string, 0, len(r.Issues)+len(r.Warnings))
	for _, is := range r.Issues {
		msg := is.Message
		if is.Suggestion != "" {
			msg += " (" + is.Suggestion + ")"
		}
		out = append(out, msg)
	}
	return append(out, r.Warnings...)
}

func (r *Result) add(sev Severity, msg, suggestion string) {
	r.Issues = append(r.Issues, Issue{Field: "password", Message: msg, Severity: sev, Suggestion: suggestion})
}

// Policy checks password strength. It never runs inside the crypto engine;
// callers decide whether a failing result blocks or only warns.
type Policy struct {
	MinLength int
	MinScore  int
	Enforce   bool
}

// DefaultPolicy mirrors config.DefaultConfig().Policy.
func DefaultPolicy() Policy {
	return NewPolicy(config.DefaultConfig().Policy)
}

// NewPolicy builds a policy from configuration.
func NewPolicy(cfg config.PolicyConfig) Policy {
	return Policy{
		MinLength: cfg.MinLength,
		MinScore:  cfg.MinScore,
		Enforce:   cfg.Enforce,
	}
}

// Check evaluates password. userInputs (secret names, descriptions) are fed
// to zxcvbn so passwords derived from them score lower.
func (p Policy) Check(password string, userInputs ...string) *Result {
	r := &Result{}

	if utf8.RuneCountInString(password) < p.MinLength {
		r.add(SeverityCritical,
			fmt.Sprintf("Password must be at least %d characters long", p.MinLength),
			"Use a longer password with mixed case, numbers, and symbols")
	}

	lower := strings.ToLower(password)
	for _, weak := range weakPatterns {
		if strings.Contains(lower, weak) {
			r.add(SeverityWarning, "Password appears to contain common weak patterns", "")
			break
		}
	}

	switch characterClasses(password) {
	case 0, 1:
		r.add(SeverityWarning, "Password is very weak", "Mix upper and lower case letters, digits and symbols")
	case 2:
		r.Warnings = append(r.Warnings, "Password is weak - consider adding more character types")
	case 3:
		r.Warnings = append(r.Warnings, "Password is moderate strength")
	}

	if password != "" {
		m := zxcvbn.PasswordStrength(password, userInputs)
		r.Score = m.Score
		r.CrackTime = m.CrackTimeDisplay
	}

	if r.Score < p.MinScore {
		r.add(SeverityCritical,
			fmt.Sprintf("Password is too guessable (score %d, need %d)", r.Score, p.MinScore),
			"Add unrelated words or random characters")
	}

	return r
}

// Gate returns an error when the policy is enforced and the result failed.
func (p Policy) Gate(r *Result) error {
	if !p.Enforce {
		return nil
	}
	return r.Err()
}

func characterClasses(s string) int {
	var upper, lower, digit, special bool
	for _, c := range s {
		switch {
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsLower(c):
			lower = true
		case unicode.IsDigit(c):
			digit = true
		case !unicode.IsLetter(c):
			special = true
		}
	}

	n := 0
	for _, b := range []bool{upper, lower, digit, special} {
		if b {
			n++
		}
	}
	return n
}
