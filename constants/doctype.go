package constants

// DocTypeUnknown is assigned when no rule scores above zero.
const DocTypeUnknown = "Unknown"

// DefaultCurrency is used for monetary values without an explicit currency.
const DefaultCurrency = "GBP"
