package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/maltedev/priceguess-ingest/internal/models"
)

var amountPattern = regexp.MustCompile(`\d+(?:[.,'\x{00a0}\x{202f}]\d+)*`)

// ParsePrice pulls the first amount out of text and infers its currency.
// host is the page's hostname and only breaks ties for a bare "$".
func ParsePrice(text, host string) (amount float64, currency string, ok bool) {
	currency = InferCurrency(text, host)

	token := amountPattern.FindString(text)
	if token == "" {
		return 0, currency, false
	}

	amount, ok = NormalizeAmount(token, currency == "EUR")
	return amount, currency, ok
}

// NormalizeAmount turns a localized number into a float. Group separators
// are dropped; the decimal separator is whichever of "." and "," comes last
// when both appear. A lone separator followed by exactly three digits is a
// group separator when it is a comma, or a dot in a decimal-comma locale.
func NormalizeAmount(token string, decimalComma bool) (float64, bool) {
	token = strings.NewReplacer("'", "", "\u00a0", "", "\u202f", "").Replace(token)
	if token == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(token, ".")
	lastComma := strings.LastIndex(token, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			token = strings.ReplaceAll(token, ".", "")
			token = strings.Replace(token, ",", ".", 1)
		} else {
			token = strings.ReplaceAll(token, ",", "")
		}
	case lastComma >= 0:
		token = resolveSingleSeparator(token, ",", true)
	case lastDot >= 0:
		token = resolveSingleSeparator(token, ".", decimalComma)
	}

	v, err := strconv.ParseFloat(token, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func resolveSingleSeparator(token, sep string, threeDigitsIsGroup bool) string {
	parts := strings.Split(token, sep)
	last := parts[len(parts)-1]

	if len(parts) > 2 {
		if len(last) == 3 {
			return strings.Join(parts, "")
		}
		return strings.Join(parts[:len(parts)-1], "") + "." + last
	}

	if threeDigitsIsGroup && len(last) == 3 {
		return parts[0] + last
	}
	return parts[0] + "." + last
}

// InferCurrency maps currency symbols and codes to ISO codes. A "$" is
// narrowed to CAD or AUD by a prefix in the text, then by the host; anything
// else is USD.
func InferCurrency(text, host string) string {
	upper := strings.ToUpper(text)

	switch {
	case strings.Contains(text, "£") || strings.Contains(upper, "GBP"):
		return "GBP"
	case strings.Contains(text, "€") || strings.Contains(upper, "EUR"):
		return "EUR"
	case strings.Contains(text, "¥") || strings.Contains(text, "￥") || strings.Contains(upper, "JPY"):
		return "JPY"
	case strings.Contains(text, "₹") || strings.Contains(upper, "INR"):
		return "INR"
	}

	if !strings.Contains(text, "$") && !strings.Contains(upper, "CAD") && !strings.Contains(upper, "AUD") {
		return models.DefaultCurrency
	}

	switch {
	case strings.Contains(upper, "CA$"), strings.Contains(upper, "C$"), strings.Contains(upper, "CAD"):
		return "CAD"
	case strings.Contains(upper, "AU$"), strings.Contains(upper, "A$"), strings.Contains(upper, "AUD"):
		return "AUD"
	case strings.Contains(upper, "US$"), strings.Contains(upper, "USD"):
		return "USD"
	}

	host = strings.ToLower(host)
	switch {
	case strings.HasSuffix(host, ".ca"):
		return "CAD"
	case strings.HasSuffix(host, ".com.au"):
		return "AUD"
	}

	return models.DefaultCurrency
}
