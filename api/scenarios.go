/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	lease data for demos and for trying the admin UI. Each scenario creates
	a customer and one or more contracts through the same factory and
	billing code a real submission goes through.

AVAILABLE SCENARIOS:

	office-lease:       One year office, January rent-free, quarterly, two receipts
	retail-fitout:      Retail unit with fit-out, later commencement, monthly
	multi-unit:         Two units plus service charge and parking, left as draft
	early-termination:  Two-year warehouse terminated after the first year

HOW SCENARIOS WORK:
 1. Upsert the scenario's customer (fixed id, so reloading is harmless)
 2. Parse the contract JSON via factory
 3. Submit through billing (charges are posted for active contracts)
 4. Optionally post receipts or terminate

	Contracts get generated numbers, so loading a scenario twice creates
	a second copy of its contracts.

USAGE VIA API:

	POST /api/admin/scenarios/load
	{"scenario_id": "office-lease"}

USAGE VIA CLI:

	leasectl seed office-lease

SEE ALSO:
  - factory/contract.go: Contract JSON format
  - billing/service.go: Submit, PostReceipt, Terminate
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/leaseforge/lease-engine/billing"
	"github.com/leaseforge/lease-engine/factory"
	"github.com/leaseforge/lease-engine/generic"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ScenarioResult lists what a scenario created.
type ScenarioResult struct {
	Scenario   string   `json:"scenario"`
	CustomerID string   `json:"customer_id"`
	Contracts  []string `json:"contracts"`
}

type scenarioLoader func(ctx context.Context, s *scenarioRun) error

type scenario struct {
	ScenarioDTO
	customer billing.Customer
	load     scenarioLoader
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "office-lease",
			Name:        "Office Lease",
			Description: "One year office lease, January rent-free, 5% tax, quarterly installments, two receipts",
		},
		customer: billing.Customer{ID: "demo-gulf-trading", Name: "Gulf Trading LLC", Email: "accounts@gulftrading.example"},
		load:     loadOfficeLease,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "retail-fitout",
			Name:        "Retail With Fit-Out",
			Description: "Retail unit with a two month fit-out, rent commencing after fit-out, monthly installments",
		},
		customer: billing.Customer{ID: "demo-palm-cafe", Name: "Palm Cafe", Email: "owner@palmcafe.example", Phone: "+971 4 000 0000"},
		load:     loadRetailFitout,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "multi-unit",
			Name:        "Multi-Unit Draft",
			Description: "Two office units with service charge and parking, saved as a draft",
		},
		customer: billing.Customer{ID: "demo-atlas-consulting", Name: "Atlas Consulting", Email: "finance@atlas.example"},
		load:     loadMultiUnit,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "early-termination",
			Name:        "Early Termination",
			Description: "Two year warehouse lease terminated after one year; later charges reversed",
		},
		customer: billing.Customer{ID: "demo-desert-logistics", Name: "Desert Logistics", Email: "ap@desertlogistics.example"},
		load:     loadEarlyTermination,
	},
}

// Scenarios returns the available demo scenarios.
func Scenarios() []ScenarioDTO {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	return out
}

// LoadScenarioByID runs one scenario against the billing service.
func LoadScenarioByID(ctx context.Context, b *billing.Service, f *factory.ContractFactory, id, actor string) (*ScenarioResult, error) {
	for _, sc := range scenarios {
		if sc.ID != id {
			continue
		}
		cust, err := b.CreateCustomer(ctx, sc.customer)
		if err != nil {
			return nil, fmt.Errorf("creating customer: %w", err)
		}
		run := &scenarioRun{
			billing:  b,
			factory:  f,
			customer: cust.ID,
			actor:    actor,
			result:   &ScenarioResult{Scenario: id, CustomerID: cust.ID},
		}
		if err := sc.load(ctx, run); err != nil {
			return nil, fmt.Errorf("loading scenario %s: %w", id, err)
		}
		return run.result, nil
	}
	return nil, &generic.FieldError{Field: "scenario_id", Value: id, Message: "unknown scenario"}
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios())
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := LoadScenarioByID(r.Context(), h.Billing, h.Factory, req.ScenarioID, actor(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.logger.Info().Str("scenario", req.ScenarioID).Int("contracts", len(res.Contracts)).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type scenarioRun struct {
	billing  *billing.Service
	factory  *factory.ContractFactory
	customer string
	actor    string
	result   *ScenarioResult
}

// submit parses a contract JSON template (%s is the customer id) and
// submits it.
func (s *scenarioRun) submit(ctx context.Context, tmpl string) (*billing.Contract, error) {
	in, err := s.factory.ParseContract([]byte(fmt.Sprintf(tmpl, s.customer)))
	if err != nil {
		return nil, err
	}
	in.Actor = s.actor
	c, err := s.billing.Submit(ctx, *in)
	if err != nil {
		return nil, err
	}
	s.result.Contracts = append(s.result.Contracts, c.ID)
	return c, nil
}

func (s *scenarioRun) receipt(ctx context.Context, c *billing.Contract, amount, date, ref string) error {
	at, err := generic.ParseDate(date)
	if err != nil {
		return err
	}
	_, err = s.billing.PostReceipt(ctx, c.ID, billing.Receipt{
		Amount:         decimal.RequireFromString(amount),
		ReceivedAt:     at,
		Reference:      ref,
		Method:         "cheque",
		IdempotencyKey: "scenario:" + c.ID + ":" + ref,
		Actor:          s.actor,
	})
	return err
}

func loadOfficeLease(ctx context.Context, s *scenarioRun) error {
	c, err := s.submit(ctx, `{
		"customer_id": %q,
		"units": [{
			"unit_id": "OF-1203",
			"from_date": "2025-01-01",
			"to_date": "2025-12-31",
			"rent_per_month": "10000",
			"rent_free_from": "2025-01-01",
			"rent_free_to": "2025-01-31",
			"tax_percentage": 5,
			"no_of_installments": 4,
			"frequency": "quarterly"
		}]
	}`)
	if err != nil {
		return err
	}
	if err := s.receipt(ctx, c, "28824.66", "2025-01-03", "CHQ-100201"); err != nil {
		return err
	}
	return s.receipt(ctx, c, "15000", "2025-04-10", "CHQ-100202")
}

func loadRetailFitout(ctx context.Context, s *scenarioRun) error {
	_, err := s.submit(ctx, `{
		"customer_id": %q,
		"units": [{
			"unit_id": "RT-G07",
			"from_date": "2025-03-01",
			"to_date": "2026-02-28",
			"rent_per_year": "180000",
			"rent_source": "year",
			"fitout_from": "2025-03-01",
			"fitout_to": "2025-04-30",
			"rent_free_from": "2025-03-01",
			"rent_free_to": "2025-04-30",
			"commencement_date": "2025-05-01",
			"tax_percentage": 5,
			"no_of_installments": 10,
			"frequency": "monthly"
		}],
		"charges": [
			{"description": "Security deposit", "amount": "15000"}
		]
	}`)
	return err
}

func loadMultiUnit(ctx context.Context, s *scenarioRun) error {
	_, err := s.submit(ctx, `{
		"customer_id": %q,
		"status": "draft",
		"units": [
			{
				"unit_id": "OF-1501",
				"from_date": "2025-06-01",
				"to_date": "2027-05-31",
				"rent_per_month": "8500",
				"tax_percentage": 5,
				"no_of_installments": 8,
				"frequency": "quarterly"
			},
			{
				"unit_id": "OF-1502",
				"from_date": "2025-06-01",
				"to_date": "2027-05-31",
				"rent_per_month": "6200",
				"rent_free_from": "2025-06-01",
				"rent_free_to": "2025-06-15",
				"tax_percentage": 5,
				"no_of_installments": 4,
				"frequency": "bi_annual"
			}
		],
		"charges": [
			{"description": "Service charge", "amount": "12000", "tax_percentage": 5},
			{"description": "Parking (4 bays)", "amount": "9600", "tax_percentage": 5}
		]
	}`)
	return err
}

func loadEarlyTermination(ctx context.Context, s *scenarioRun) error {
	c, err := s.submit(ctx, `{
		"customer_id": %q,
		"units": [{
			"unit_id": "WH-04",
			"from_date": "2024-07-01",
			"to_date": "2026-06-30",
			"rent_per_year": "240000",
			"rent_source": "year",
			"tax_percentage": 5,
			"no_of_installments": 4,
			"frequency": "bi_annual"
		}]
	}`)
	if err != nil {
		return err
	}
	if err := s.receipt(ctx, c, "126000", "2024-07-02", "TRF-88110"); err != nil {
		return err
	}
	at, _ := generic.ParseDate("2025-06-30")
	_, err = s.billing.Terminate(ctx, c.ID, at, "tenant exercised break clause", s.actor)
	return err
}
