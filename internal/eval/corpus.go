// Package eval holds a synthetic tax-form corpus and a runner that scores a
// classifier against it.
package eval

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Case is one synthetic document rendered as the text an OCR pass would
// return for it.
type Case struct {
	Name         string
	FileName     string
	ExpectedType string
	TaxYear      int
	OCRText      string
	// Blank and LowQuality cases are expected to be routed to a reviewer.
	Blank      bool
	LowQuality bool
}

// ExpectReview reports whether a correct classifier flags the case for
// human review.
func (c Case) ExpectReview() bool {
	return c.Blank || c.LowQuality
}

var money = message.NewPrinter(language.English)

func dollars(v float64) string {
	return money.Sprintf("$%.2f", v)
}

const corpusYear = 2024

// Corpus returns the standard evaluation set: three W-2s, two 1099-NECs, a
// 1099-INT, a 1099-DIV, a 1098, a blank W-2 and a faded W-2.
func Corpus() []Case {
	return []Case{
		w2Case("w2-acme", "w2-acme-2024.pdf", "Acme Corp", 75432, false, false),
		w2Case("w2-techstart", "w2-techstart-2024.pdf", "TechStart Inc", 92150, false, false),
		w2Case("w2-globalco", "w2-globalco-2024.pdf", "GlobalCo LLC", 55000, false, false),
		necCase("1099nec-consult", "1099nec-consult-2024.pdf", "Consulting Partners", 45000),
		necCase("1099nec-freelance", "1099nec-freelance-2024.pdf", "Freelance Hub", 28500),
		{
			Name:         "1099int-bigbank",
			FileName:     "1099int-bigbank-2024.pdf",
			ExpectedType: "1099-INT",
			TaxYear:      corpusYear,
			OCRText:      render1099INT("Big Bank", 1234),
		},
		{
			Name:         "1099div-invest",
			FileName:     "1099div-invest-2024.pdf",
			ExpectedType: "1099-DIV",
			TaxYear:      corpusYear,
			OCRText:      render1099DIV("Investment Corp", 5678),
		},
		{
			Name:         "1098-mortgage",
			FileName:     "1098-mortgage-2024.pdf",
			ExpectedType: "1098",
			TaxYear:      corpusYear,
			OCRText:      render1098("Home Loans Inc", 12345),
		},
		w2Case("w2-blank", "w2-blank-template.pdf", "", 0, true, false),
		w2Case("w2-lowquality", "w2-lowquality-2024.pdf", "Faded Corp", 48750, false, true),
	}
}

func w2Case(name, file, employer string, wages float64, blank, lowQuality bool) Case {
	return Case{
		Name:         name,
		FileName:     file,
		ExpectedType: "W-2",
		TaxYear:      corpusYear,
		OCRText:      renderW2(employer, wages, blank, lowQuality),
		Blank:        blank,
		LowQuality:   lowQuality,
	}
}

func necCase(name, file, payer string, compensation float64) Case {
	return Case{
		Name:         name,
		FileName:     file,
		ExpectedType: "1099-NEC",
		TaxYear:      corpusYear,
		OCRText:      render1099NEC(payer, compensation),
	}
}

type box struct {
	label string
	value string
}

func renderBoxes(title string, boxes []box, footer string) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	for _, bx := range boxes {
		b.WriteString(bx.label)
		b.WriteString("\n")
		if bx.value != "" {
			b.WriteString(bx.value)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(footer)
	b.WriteString("\n")
	return b.String()
}

func renderW2(employer string, wages float64, blank, lowQuality bool) string {
	value := func(v string) string {
		if blank {
			return ""
		}
		if lowQuality {
			return fade(v)
		}
		return v
	}
	boxes := []box{
		{"a Employee's social security number", value("XXX-XX-1234")},
		{"b Employer identification number (EIN)", value("12-3456789")},
		{"c Employer's name, address, and ZIP code", value(employer)},
		{"e Employee's first name and initial, last name", value("John Q. Taxpayer")},
		{"1 Wages, tips, other compensation", value(dollars(wages))},
		{"2 Federal income tax withheld", value(dollars(wages * 0.22))},
		{"3 Social security wages", value(dollars(wages))},
		{"4 Social security tax withheld", value(dollars(wages * 0.062))},
		{"5 Medicare wages and tips", value(dollars(wages))},
		{"6 Medicare tax withheld", value(dollars(wages * 0.0145))},
	}
	return renderBoxes(
		fmt.Sprintf("Form W-2 Wage and Tax Statement %d", corpusYear),
		boxes,
		"Copy B - To Be Filed With Employee's FEDERAL Tax Return\nDepartment of the Treasury - Internal Revenue Service",
	)
}

// fade simulates a light-grey print that OCR only partly recovers.
func fade(v string) string {
	runes := []rune(v)
	for i := range runes {
		if i%3 == 1 && runes[i] != ' ' {
			runes[i] = '?'
		}
	}
	return string(runes)
}

func render1099NEC(payer string, compensation float64) string {
	return renderBoxes(
		fmt.Sprintf("Form 1099-NEC Nonemployee Compensation %d", corpusYear),
		[]box{
			{"PAYER'S name, street address, city or town, state or province, country, ZIP or foreign postal code, and telephone no.", payer + "\n789 Client Road\nBusiness City, ST 11111"},
			{"PAYER'S TIN", "98-7654321"},
			{"RECIPIENT'S TIN", "XXX-XX-5678"},
			{"RECIPIENT'S name", "Jane D. Contractor\n321 Freelance Lane\nWorktown, ST 22222"},
			{"1 Nonemployee compensation", dollars(compensation)},
			{"4 Federal income tax withheld", "$0.00"},
		},
		fmt.Sprintf("Form 1099-NEC (Rev. 1-%d)\nDepartment of the Treasury - Internal Revenue Service", corpusYear),
	)
}

func render1099INT(payer string, interest float64) string {
	return renderBoxes(
		fmt.Sprintf("Form 1099-INT Interest Income %d", corpusYear),
		[]box{
			{"PAYER'S name, street address, city or town, state or province, country, ZIP or foreign postal code, and telephone no.", payer},
			{"PAYER'S TIN", "11-2233445"},
			{"RECIPIENT'S TIN", "XXX-XX-1234"},
			{"RECIPIENT'S name", "John Q. Taxpayer"},
			{"1 Interest income", dollars(interest)},
			{"4 Federal income tax withheld", "$0.00"},
		},
		"Department of the Treasury - Internal Revenue Service",
	)
}

func render1099DIV(payer string, dividends float64) string {
	return renderBoxes(
		fmt.Sprintf("Form 1099-DIV Dividends and Distributions %d", corpusYear),
		[]box{
			{"PAYER'S name, street address, city or town, state or province, country, ZIP or foreign postal code, and telephone no.", payer},
			{"PAYER'S TIN", "22-3344556"},
			{"RECIPIENT'S TIN", "XXX-XX-1234"},
			{"RECIPIENT'S name", "John Q. Taxpayer"},
			{"1a Total ordinary dividends", dollars(dividends)},
			{"1b Qualified dividends", dollars(dividends * 0.8)},
		},
		"Department of the Treasury - Internal Revenue Service",
	)
}

func render1098(lender string, interest float64) string {
	return renderBoxes(
		fmt.Sprintf("Form 1098 Mortgage Interest Statement %d", corpusYear),
		[]box{
			{"RECIPIENT'S/LENDER'S name, street address, city or town, state or province, country, ZIP or foreign postal code, and telephone no.", lender},
			{"RECIPIENT'S/LENDER'S TIN", "33-4455667"},
			{"PAYER'S/BORROWER'S TIN", "XXX-XX-1234"},
			{"PAYER'S/BORROWER'S name", "John Q. Taxpayer"},
			{"1 Mortgage interest received from payer(s)/borrower(s)", dollars(interest)},
			{"2 Outstanding mortgage principal", dollars(interest * 25)},
		},
		"Department of the Treasury - Internal Revenue Service",
	)
}
