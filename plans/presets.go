/*
Package plans provides preset commission plan definitions.

These functions build JSON plan definitions for common sales roles. They
produce JSON rather than commission.Plan values so the same definitions can
be stored, edited and versioned like any admin-authored plan.

USAGE:
  import "github.com/warp/commission-engine/plans"

  jsonStr := plans.StandardAEJSON("ae-2025", "Account Executive 2025")
  plan, err := factory.New().ParsePlan(jsonStr)
*/
package plans

import "encoding/json"

// StandardAEJSON returns the standard account executive plan: 7.0% base,
// 8.5% from 100% attainment, 10.0% from 125%, with new-logo and multi-year
// bonuses.
func StandardAEJSON(id, name string) string {
	pj := map[string]interface{}{
		"id":        id,
		"name":      name,
		"version":   1,
		"base_rate": "7.0",
		"tiers": []map[string]interface{}{
			{"threshold": "100", "rate": "8.5"},
			{"threshold": "125", "rate": "10.0"},
		},
		"bonuses": []map[string]interface{}{
			{"id": "new-logo", "name": "New Logo SPIFF", "category": "new_logo", "effect": "fixed", "value": "1000"},
			{"id": "multi-year", "name": "Multi-Year Kicker", "category": "multi_year", "effect": "percent", "value": "2", "min_term_months": 24},
		},
		"eligible_roles":           []string{"AE", "Senior AE"},
		"retroactive_accelerators": true,
	}
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}

// EnterpriseAEJSON returns a plan for enterprise reps with a steeper top
// tier and a volume bonus on large deals.
func EnterpriseAEJSON(id, name string) string {
	pj := map[string]interface{}{
		"id":        id,
		"name":      name,
		"version":   1,
		"base_rate": "6.0",
		"tiers": []map[string]interface{}{
			{"threshold": "100", "rate": "8.0"},
			{"threshold": "125", "rate": "11.0"},
			{"threshold": "150", "rate": "13.0"},
		},
		"bonuses": []map[string]interface{}{
			{"id": "whale", "name": "Large Deal Bonus", "category": "volume", "effect": "fixed", "value": "5000", "min_deal_amount": "250000"},
			{"id": "multi-year", "name": "Multi-Year Kicker", "category": "multi_year", "effect": "percent", "value": "1.5", "min_term_months": 36},
			{"id": "retention", "name": "Renewal Retention", "category": "retention", "effect": "percent", "value": "0.5"},
		},
		"eligible_roles":           []string{"Enterprise AE"},
		"retroactive_accelerators": true,
	}
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}

// SDRJSON returns a flat-rate plan for sales development reps. No tiers:
// every rep stays on the base rate.
func SDRJSON(id, name string) string {
	pj := map[string]interface{}{
		"id":        id,
		"name":      name,
		"version":   1,
		"base_rate": "3.0",
		"tiers":     []map[string]interface{}{},
		"bonuses": []map[string]interface{}{
			{"id": "sourced-logo", "name": "Sourced New Logo", "category": "new_logo", "effect": "fixed", "value": "250"},
		},
		"eligible_roles": []string{"SDR"},
	}
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}

// AccountManagerJSON returns a plan for account managers paid on upsell
// and renewal.
func AccountManagerJSON(id, name string) string {
	pj := map[string]interface{}{
		"id":        id,
		"name":      name,
		"version":   1,
		"base_rate": "4.0",
		"tiers": []map[string]interface{}{
			{"threshold": "100", "rate": "5.5"},
		},
		"bonuses": []map[string]interface{}{
			{"id": "upsell", "name": "Expansion Bonus", "category": "upsell", "effect": "percent", "value": "1"},
			{"id": "renewal", "name": "On-Time Renewal", "category": "retention", "effect": "fixed", "value": "300"},
		},
		"eligible_roles":           []string{"AM"},
		"retroactive_accelerators": false,
	}
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}
