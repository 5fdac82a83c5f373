package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/doc-intake/constants"
	"github.com/joseph-ayodele/doc-intake/internal/rules"
)

func defaultStore(t *testing.T) *rules.Store {
	t.Helper()
	rs, err := rules.Default(nil)
	require.NoError(t, err)
	return rules.NewStore(rs)
}

func TestClassifyDefaultTypes(t *testing.T) {
	samples := map[string]string{
		"EICR": "ELECTRICAL INSTALLATION CONDITION REPORT\nDate of inspection: 15/07/2023\n" +
			"Overall assessment: SATISFACTORY\nBS 7671 compliant. NICEIC registered contractor.",
		"Gas Safety Certificate": "Landlord's Gas Safety Record (CP12)\nDate of check: 01/02/2024\n" +
			"Boiler and flue inspected by Gas Safe registered engineer.",
		"Energy Performance Certificate": "Energy Performance Certificate (EPC)\nDate of assessment: 03/03/2022\n" +
			"Current rating: C  Potential rating: B\nAssessor accreditation scheme: Elmhurst",
		"Fire Risk Assessment": "Fire Risk Assessment\nRegulatory Reform (Fire Safety) Order 2005\n" +
			"Date of assessment: 10/10/2023\nRisk rating: Moderate risk\n" +
			"Fire doors, escape routes and emergency lighting checked.",
		"Insurance Schedule": "Policy Schedule - Buildings Insurance\nPolicy number: ABC123\n" +
			"Period of insurance: 01/04/2024 to 31/03/2025\nSum insured: 5,000,000  Premium: 4,200  Excess: 250",
		"Lease": "THIS LEASE is made the 1st day of May 2010 between the Landlord and the Tenant.\n" +
			"The term of 125 years, ground rent 250, the demise and covenants.",
		"Major Works Notice": "NOTICE OF INTENTION TO CARRY OUT WORKS\nSection 20 Landlord and Tenant Act 1985\n" +
			"Qualifying works: roof replacement. Leaseholders may make observations within the consultation period.",
		"Asbestos Survey": "Asbestos Management Survey\nDate of survey: 05/05/2021\n" +
			"Chrysotile identified in ceiling tiles; ACMs recorded with material assessment.",
		"Legionella Risk Assessment": "Legionella Risk Assessment (ACOP L8)\nDate of the assessment: 12/12/2022\n" +
			"Cold water storage tank and calorifier temperatures recorded.",
		"Lift Inspection": "LOLER Report of Thorough Examination\nDate of examination: 20/06/2024\n" +
			"Passenger lift, safe working load 630kg. No defects. Next examination due 20/12/2024.",
		"Service Charge Budget": "Service Charge Budget for the year ending 31 March 2025\n" +
			"Management fee 1,200; Reserve fund contribution 5,000; total expenditure.",
	}

	c := New(defaultStore(t))
	for want, text := range samples {
		t.Run(want, func(t *testing.T) {
			res := c.Classify([]Page{{Number: 1, Text: text}})
			assert.Equal(t, want, res.Type, "scores: %v", res.Scores)
			assert.Greater(t, res.Confidence, 0.0)
			assert.LessOrEqual(t, res.Confidence, 1.0)
			assert.Equal(t, c.rules.Current().Version, res.RuleSetVersion)
		})
	}
}

func TestClassifyUnknown(t *testing.T) {
	c := New(defaultStore(t))

	res := c.Classify([]Page{{Number: 1, Text: "Shopping list: eggs, milk."}})
	assert.Equal(t, constants.DocTypeUnknown, res.Type)
	assert.Zero(t, res.Confidence)

	res = c.Classify(nil)
	assert.Equal(t, constants.DocTypeUnknown, res.Type)
	assert.Zero(t, res.Confidence)
}

func TestClassifyTieKeepsFirstDeclared(t *testing.T) {
	rs, err := rules.Compile(rules.File{
		Version: "tie",
		Types: []rules.TypeSpec{
			{Name: "First", Detect: []string{"notice"}},
			{Name: "Second", Detect: []string{"notice"}},
		},
	}, nil)
	require.NoError(t, err)

	res := Classify(rs, []Page{{Number: 1, Text: "Notice"}})
	assert.Equal(t, "First", res.Type)
	assert.InDelta(t, 3.0/7.0, res.Confidence, 1e-9)
}

func TestClassifyConfidenceFormula(t *testing.T) {
	rs, err := rules.Compile(rules.File{
		Version: "conf",
		Types: []rules.TypeSpec{
			{Name: "A", Detect: []string{"alpha"}},
			{Name: "B", Detect: []string{"beta"}},
		},
	}, nil)
	require.NoError(t, err)

	// A: 2 matches x 3 = 6, B: 1 match x 3 = 3 -> 6 / (6 + 3 + 1)
	res := Classify(rs, []Page{{Number: 1, Text: "alpha alpha beta"}})
	assert.Equal(t, "A", res.Type)
	assert.InDelta(t, 0.6, res.Confidence, 1e-9)
	assert.Equal(t, map[string]int{"A": 6, "B": 3}, res.Scores)
}

func TestClassifySkipsMalformedPattern(t *testing.T) {
	rs, err := rules.Compile(rules.File{
		Version: "bad",
		Types: []rules.TypeSpec{
			{Name: "Broken", Detect: []string{"[unterminated"}},
			{Name: "Working", Detect: []string{"widget"}},
		},
	}, nil)
	require.NoError(t, err)
	require.Len(t, rs.Skipped, 1)

	res := Classify(rs, []Page{{Number: 1, Text: "widget spec sheet"}})
	assert.Equal(t, "Working", res.Type)
}

func TestClassifyPageOrder(t *testing.T) {
	pages := []Page{{Number: 2, Text: "second"}, {Number: 1, Text: "first"}}
	assert.Equal(t, "first\nsecond", Text(pages))
	assert.Equal(t, 2, pages[0].Number, "input must not be reordered")
}

func TestClassifierSeesReplacedRules(t *testing.T) {
	store := defaultStore(t)
	c := New(store)

	rs, err := rules.Compile(rules.File{
		Version: "custom",
		Types:   []rules.TypeSpec{{Name: "Memo", Detect: []string{"memo"}}},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Replace(rs))

	res := c.Classify([]Page{{Number: 1, Text: "Internal memo"}})
	assert.Equal(t, "Memo", res.Type)
	assert.Equal(t, "custom", res.RuleSetVersion)
}

func TestPagesFromText(t *testing.T) {
	pages := PagesFromText("one\ftwo")
	require.Len(t, pages, 2)
	assert.Equal(t, Page{Number: 2, Text: "two"}, pages[1])
}
