// Package dashboard computes the totals shown on the role dashboards from
// items fetched by a resource store.
package dashboard

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/campus/portal/internal/resource"
	"github.com/shopspring/decimal"
)

// Item fields read by the summaries.
const (
	FieldAmount   = "amount"
	FieldCampaign = "campaign"
	FieldType     = "type"
)

// Finance entry types.
const (
	TypeIncome  = "income"
	TypeExpense = "expense"
)

// UnassignedCampaign groups donations without a campaign.
const UnassignedCampaign = "general"

var hundred = decimal.NewFromInt(100)

// CampaignTotal is the donated total for one campaign.
type CampaignTotal struct {
	Campaign string          `json:"campaign" yaml:"campaign"`
	Total    decimal.Decimal `json:"total" yaml:"total"`
	Count    int             `json:"count" yaml:"count"`
}

// DonationSummary aggregates donation records against a fundraising goal.
type DonationSummary struct {
	Total      decimal.Decimal `json:"total" yaml:"total"`
	Goal       decimal.Decimal `json:"goal" yaml:"goal"`
	Count      int             `json:"count" yaml:"count"`
	Percent    decimal.Decimal `json:"percent" yaml:"percent"`
	ByCampaign []CampaignTotal `json:"by_campaign" yaml:"by_campaign"`
	Skipped    int             `json:"skipped" yaml:"skipped"`
}

// FinanceSummary aggregates income and expense records.
type FinanceSummary struct {
	Income  decimal.Decimal `json:"income" yaml:"income"`
	Expense decimal.Decimal `json:"expense" yaml:"expense"`
	Balance decimal.Decimal `json:"balance" yaml:"balance"`
	Skipped int             `json:"skipped" yaml:"skipped"`
}

// Donations sums donation amounts overall and per campaign. Campaigns are
// ordered by total, largest first.
func Donations(items []resource.Item, goal decimal.Decimal) DonationSummary {
	sum := DonationSummary{Total: decimal.Zero, Goal: goal, ByCampaign: []CampaignTotal{}}
	byCampaign := make(map[string]*CampaignTotal)

	for _, it := range items {
		amount, ok := Amount(it[FieldAmount])
		if !ok {
			sum.Skipped++
			continue
		}
		sum.Total = sum.Total.Add(amount)
		sum.Count++

		name := UnassignedCampaign
		if c, ok := it[FieldCampaign].(string); ok && strings.TrimSpace(c) != "" {
			name = strings.TrimSpace(c)
		}
		ct, ok := byCampaign[name]
		if !ok {
			ct = &CampaignTotal{Campaign: name, Total: decimal.Zero}
			byCampaign[name] = ct
		}
		ct.Total = ct.Total.Add(amount)
		ct.Count++
	}

	for _, ct := range byCampaign {
		sum.ByCampaign = append(sum.ByCampaign, *ct)
	}
	sort.Slice(sum.ByCampaign, func(i, j int) bool {
		a, b := sum.ByCampaign[i], sum.ByCampaign[j]
		if cmp := a.Total.Cmp(b.Total); cmp != 0 {
			return cmp > 0
		}
		return a.Campaign < b.Campaign
	})

	sum.Percent = Percentage(sum.Total, goal)
	return sum
}

// Finances splits entries into income and expense. Entries without a type
// are classified by sign; expenses are always reported as positive amounts.
func Finances(items []resource.Item) FinanceSummary {
	sum := FinanceSummary{Income: decimal.Zero, Expense: decimal.Zero}

	for _, it := range items {
		amount, ok := Amount(it[FieldAmount])
		if !ok {
			sum.Skipped++
			continue
		}
		kind, _ := it[FieldType].(string)
		switch strings.ToLower(strings.TrimSpace(kind)) {
		case TypeIncome:
			sum.Income = sum.Income.Add(amount.Abs())
		case TypeExpense:
			sum.Expense = sum.Expense.Add(amount.Abs())
		case "":
			if amount.IsNegative() {
				sum.Expense = sum.Expense.Add(amount.Abs())
			} else {
				sum.Income = sum.Income.Add(amount)
			}
		default:
			sum.Skipped++
		}
	}

	sum.Balance = sum.Income.Sub(sum.Expense)
	return sum
}

// Percentage returns part as a percentage of whole rounded to two decimals.
// A zero whole yields zero.
func Percentage(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(whole).Round(2)
}

// Amount converts a decoded JSON value to a decimal. Numbers and numeric
// strings are accepted; anything else reports false.
func Amount(v interface{}) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val), true
	case float32:
		return decimal.NewFromFloat32(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		return d, err == nil
	case decimal.Decimal:
		return val, true
	default:
		return decimal.Zero, false
	}
}
