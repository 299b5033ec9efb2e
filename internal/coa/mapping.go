package coa

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
	"github.com/heraerp/heraerp-prd-sub081/internal/smartcode"
)

// Default fallback accounts.
const (
	DefaultDebitAccount  = "1100"
	DefaultCreditAccount = "4100"
)

// Rule maps a smart-code prefix to the accounts used for its lines.
type Rule struct {
	Prefix string `yaml:"prefix"`
	Debit  string `yaml:"debit"`
	Credit string `yaml:"credit"`
}

// Mapping is the swappable smart-code → account table. Rules are matched
// by longest prefix on segment boundaries.
type Mapping struct {
	Rules         []Rule `yaml:"rules"`
	DefaultDebit  string `yaml:"default_debit"`
	DefaultCredit string `yaml:"default_credit"`
}

// DefaultMapping returns the built-in table.
func DefaultMapping() Mapping {
	return Mapping{
		Rules: []Rule{
			{Prefix: "HERA.SALON.SVC.TXN", Debit: "1100", Credit: "4100"},
			{Prefix: "HERA.SALON.RETAIL.TXN", Debit: "1100", Credit: "4200"},
			{Prefix: "HERA.REST.POS.TXN", Debit: "1100", Credit: "4300"},
			{Prefix: "HERA.RETAIL.POS.TXN", Debit: "1100", Credit: "4200"},
			{Prefix: "HERA.FIN.AP.TXN", Debit: "5100", Credit: "2100"},
			{Prefix: "HERA.FIN.AR.TXN", Debit: "1200", Credit: "4100"},
			{Prefix: "HERA.FIN.PAY.TXN", Debit: "2100", Credit: "1000"},
			{Prefix: "HERA.FIN.RCP.TXN", Debit: "1000", Credit: "1200"},
			{Prefix: "HERA.INV.PUR.TXN", Debit: "1300", Credit: "2100"},
		},
		DefaultDebit:  DefaultDebitAccount,
		DefaultCredit: DefaultCreditAccount,
	}
}

// LoadMapping reads a YAML mapping file. An empty path yields DefaultMapping.
func LoadMapping(path string) (Mapping, error) {
	if path == "" {
		return DefaultMapping(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Mapping{}, fmt.Errorf("coa: read mapping: %w", err)
	}
	return ParseMapping(raw)
}

// ParseMapping decodes and checks a YAML mapping document.
func ParseMapping(raw []byte) (Mapping, error) {
	var m Mapping
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Mapping{}, shared.Errorf(shared.KindValidation, "coa: decode mapping: %v", err)
	}
	if m.DefaultDebit == "" {
		m.DefaultDebit = DefaultDebitAccount
	}
	if m.DefaultCredit == "" {
		m.DefaultCredit = DefaultCreditAccount
	}
	for _, r := range m.Rules {
		if r.Prefix == "" || r.Debit == "" || r.Credit == "" {
			return Mapping{}, shared.Errorf(shared.KindValidation, "coa: mapping rule %+v is incomplete", r)
		}
	}
	return m, nil
}

// Lookup returns the debit and credit accounts for a smart code.
func (m Mapping) Lookup(code string) (debit, credit string) {
	rules := append([]Rule(nil), m.Rules...)
	sort.SliceStable(rules, func(i, j int) bool { return len(rules[i].Prefix) > len(rules[j].Prefix) })
	for _, r := range rules {
		if smartcode.HasPrefix(code, r.Prefix) {
			return r.Debit, r.Credit
		}
	}
	return m.DefaultDebit, m.DefaultCredit
}
