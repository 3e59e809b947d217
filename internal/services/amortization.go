package services

import (
	"time"

	"github.com/shopspring/decimal"
)

var twelve = decimal.NewFromInt(12)

// MonthlyPayment is the fixed annuity installment for principal at an
// annual rate over months, rounded to whole minor units.
func MonthlyPayment(principal int64, annualRate float64, months int) int64 {
	if months <= 0 {
		return principal
	}
	p := decimal.NewFromInt(principal)
	n := decimal.NewFromInt(int64(months))

	if annualRate == 0 {
		return p.Div(n).Ceil().IntPart()
	}

	r := decimal.NewFromFloat(annualRate).Div(twelve)
	f := decimal.NewFromInt(1).Add(r).Pow(n)
	return p.Mul(r).Mul(f).Div(f.Sub(decimal.NewFromInt(1))).Round(0).IntPart()
}

// MonthlyInterest is one period of interest on balance.
func MonthlyInterest(balance int64, annualRate float64) int64 {
	return decimal.NewFromInt(balance).
		Mul(decimal.NewFromFloat(annualRate)).
		Div(twelve).
		Round(0).
		IntPart()
}

type Installment struct {
	Number    int       `json:"number"`
	Due       time.Time `json:"due"`
	Payment   int64     `json:"payment"`
	Interest  int64     `json:"interest"`
	Principal int64     `json:"principal"`
	Balance   int64     `json:"balance"`
}

// Schedule lays out the installments of a new loan starting one month
// after start. The last installment absorbs rounding.
func Schedule(principal int64, annualRate float64, months int, start time.Time) []Installment {
	payment := MonthlyPayment(principal, annualRate, months)
	balance := principal
	out := make([]Installment, 0, months)

	for i := 1; i <= months && balance > 0; i++ {
		interest := MonthlyInterest(balance, annualRate)
		principalPart := payment - interest
		if principalPart > balance || i == months {
			principalPart = balance
		}
		balance -= principalPart
		out = append(out, Installment{
			Number:    i,
			Due:       start.AddDate(0, i, 0),
			Payment:   principalPart + interest,
			Interest:  interest,
			Principal: principalPart,
			Balance:   balance,
		})
	}
	return out
}
