// Package security provides input validation and credential masking.
package security

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	jerrors "trade-journal/internal/errors"
	"trade-journal/internal/models"
)

// Validation patterns
var (
	// Symbol pattern: letters, digits and the separators futures/forex tickers use
	symbolPattern = regexp.MustCompile(`^[A-Z0-9./:!&_-]{1,32}$`)

	// Email pattern, loose on purpose: the identity provider owns verification
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// TradeValidator validates trades entered by the user or returned by the
// import service.
type TradeValidator struct {
	validate *validator.Validate
	loc      *time.Location
}

// NewTradeValidator creates a validator. Date-only values are read in loc.
func NewTradeValidator(loc *time.Location) *TradeValidator {
	if loc == nil {
		loc = time.Local
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("side", func(fl validator.FieldLevel) bool {
		return models.Side(fl.Field().String()).Valid()
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		d := sl.Current().Interface().(models.TradeDetails)
		if d.OpenDate == "" || d.CloseDate == "" {
			return
		}
		open, err1 := d.Open(loc)
		closed, err2 := d.Close(loc)
		if err1 == nil && err2 == nil && closed.Before(open) {
			sl.ReportError(d.CloseDate, "CloseDate", "closeDate", "closeafteropen", "")
		}
	}, models.TradeDetails{})

	return &TradeValidator{validate: v, loc: loc}
}

// ValidateDetails checks one trade. The first failing field is reported as
// a *errors.ValidationError.
func (v *TradeValidator) ValidateDetails(d models.TradeDetails) error {
	err := v.validate.Struct(d)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !jerrors.As(err, &verrs) || len(verrs) == 0 {
		return jerrors.NewValidationError("trade", d.TradeID, err.Error())
	}

	fe := verrs[0]
	return jerrors.NewValidationError(fieldName(fe.Field()), fe.Value(), ruleMessage(fe))
}

// ValidateAll checks every trade and stops at the first invalid one.
func (v *TradeValidator) ValidateAll(details []models.TradeDetails) error {
	for i, d := range details {
		if err := v.ValidateDetails(d); err != nil {
			return fmt.Errorf("row %d (%s): %w", i+1, d.TradeID, err)
		}
	}
	return nil
}

func fieldName(f string) string {
	if f == "" {
		return f
	}
	switch f {
	case "TradeID":
		return "tradeId"
	case "PnL":
		return "pnl"
	}
	return strings.ToLower(f[:1]) + f[1:]
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "side":
		return "must be buy or sell"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must not be less than " + fe.Param()
	case "closeafteropen":
		return "must not be before openDate"
	}
	return "failed " + fe.Tag()
}

// ValidateSymbol validates a ticker symbol after normalization.
func ValidateSymbol(symbol string) error {
	s := SanitizeSymbol(symbol)
	if s == "" {
		return jerrors.NewValidationError("symbol", symbol, "symbol cannot be empty")
	}
	if !symbolPattern.MatchString(s) {
		return jerrors.NewValidationError("symbol", symbol, "invalid symbol format")
	}
	return nil
}

// ValidateEmail does a shape check on an email address.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		return jerrors.NewValidationError("email", email, "invalid email address")
	}
	return nil
}

// ValidatePassword enforces the minimum password length.
func ValidatePassword(password string) error {
	if len(password) < 6 {
		return jerrors.NewValidationError("password", MaskCredential(password), "password must be at least 6 characters")
	}
	return nil
}

// SanitizeSymbol uppercases and trims a symbol.
func SanitizeSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}

// SanitizeFilename reduces an uploaded filename to a safe object key segment.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		name = ""
	}

	var result strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_':
			result.WriteRune(r)
		case unicode.IsSpace(r):
			result.WriteRune('_')
		}
	}

	out := strings.TrimLeft(result.String(), ".")
	if out == "" {
		return "image"
	}
	return out
}

// SanitizeText removes control characters from free-form text.
func SanitizeText(text string) string {
	var result strings.Builder
	for _, r := range text {
		if r == '\n' || r == '\t' || (r >= 32 && r != 127) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
