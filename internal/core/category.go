package core

// Category identifies which source table a record came from. The category
// decides how a record expands into occurrences, how each occurrence's date
// is adjusted, and whether cross-category duplicate suppression applies.
type Category string

const (
	CategoryBoletos        Category = "boletos"
	CategoryFinanciamentos Category = "financiamentos"
	CategoryEmprestimos    Category = "emprestimos"
	CategoryPeriodicos     Category = "periodicos"
	CategoryImpostos       Category = "impostos"
	CategoryRecorrentes    Category = "recorrentes"
	CategoryCompras        Category = "compras"
	CategoryIndividual     Category = "individual"
	CategoryNotas          Category = "notas"
)

// ExpansionRule selects how a record turns into dated occurrences.
type ExpansionRule int

const (
	ExpandSingle ExpansionRule = iota
	ExpandInstallments
	ExpandAnnual
	ExpandMonthly
	ExpandInterval
	ExpandInvoice
)

// AdjustmentRule selects the business-day adjustment for an occurrence.
type AdjustmentRule int

const (
	AdjustNone AdjustmentRule = iota
	AdjustForward
	AdjustBackward
)

// Policy bundles the per-category behavior. Adding a category is a data
// change here, not a code change in the expander.
type Policy struct {
	Expansion  ExpansionRule
	Adjustment AdjustmentRule

	// SuppressAcrossCategories drops an occurrence when another category
	// already captured the same beneficiary in the same period.
	SuppressAcrossCategories bool

	// ClampFixedDay normalizes the anchor day to the last valid day of the
	// month before adjustment (day 31 in a 30-day month becomes day 30).
	ClampFixedDay bool

	// TracksHorizon marks categories whose occurrences extend the data
	// horizon used downstream for month-tab generation. Open-ended
	// categories are excluded so the horizon stays bounded.
	TracksHorizon bool
}

var policies = map[Category]Policy{
	CategoryBoletos:        {Expansion: ExpandSingle, Adjustment: AdjustForward, TracksHorizon: true},
	CategoryFinanciamentos: {Expansion: ExpandInstallments, Adjustment: AdjustForward, ClampFixedDay: true, TracksHorizon: true},
	CategoryEmprestimos:    {Expansion: ExpandInstallments, Adjustment: AdjustForward, ClampFixedDay: true, TracksHorizon: true},
	CategoryPeriodicos:     {Expansion: ExpandInterval, Adjustment: AdjustNone},
	CategoryImpostos:       {Expansion: ExpandAnnual, Adjustment: AdjustBackward, TracksHorizon: true},
	CategoryRecorrentes:    {Expansion: ExpandMonthly, Adjustment: AdjustBackward, SuppressAcrossCategories: true},
	CategoryCompras:        {Expansion: ExpandSingle, Adjustment: AdjustForward, TracksHorizon: true},
	CategoryIndividual:     {Expansion: ExpandInterval, Adjustment: AdjustNone},
	CategoryNotas:          {Expansion: ExpandInvoice, Adjustment: AdjustNone},
}

// paymentCategories is the fixed ingest order for payment tables. Notas is
// handled separately because invoices feed a different output list.
var paymentCategories = []Category{
	CategoryBoletos,
	CategoryFinanciamentos,
	CategoryEmprestimos,
	CategoryPeriodicos,
	CategoryImpostos,
	CategoryRecorrentes,
	CategoryCompras,
	CategoryIndividual,
}

// PolicyFor returns the policy for a category.
func PolicyFor(c Category) (Policy, bool) {
	p, ok := policies[c]
	return p, ok
}

// PaymentCategories returns the payment categories in ingest order.
func PaymentCategories() []Category {
	out := make([]Category, len(paymentCategories))
	copy(out, paymentCategories)
	return out
}

// Valid reports whether the category is a known member of the closed set.
func (c Category) Valid() bool {
	_, ok := policies[c]
	return ok
}

func (c Category) String() string { return string(c) }
