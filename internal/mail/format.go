package mail

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var frenchPrinter = message.NewPrinter(language.French)

// FormatAmount renders a TTC amount the French way: comma decimals, narrow
// space thousands, trailing euro sign.
func FormatAmount(amount decimal.Decimal) string {
	value, _ := amount.Round(2).Float64()
	return frenchPrinter.Sprintf("%v €", number.Decimal(value,
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

var frenchMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// FormatDate renders a date as "2 janvier 2026".
func FormatDate(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), frenchMonths[t.Month()-1], t.Year())
}
