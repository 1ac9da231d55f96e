package dispatch

// CategoryRule binds a trigger category to the keywords that activate it and
// the tool name that serves it. The rule table is declarative so planning
// stays deterministic and unit-testable without live connections.
type CategoryRule struct {
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
	Tool     string   `json:"tool"`
}

// DefaultRules returns the built-in category table for the finance domain
func DefaultRules() []CategoryRule {
	return []CategoryRule{
		{
			Category: "sentiment",
			Keywords: []string{"sentiment", "mood", "feeling", "opinion", "bullish", "bearish"},
			Tool:     "analyze_sentiment",
		},
		{
			Category: "fundamentals",
			Keywords: []string{"fundamentals", "earnings", "revenue", "eps", "valuation", "financials", "margin"},
			Tool:     "get_fundamentals",
		},
		{
			Category: "historical-event",
			Keywords: []string{"history", "historical", "past", "crash", "event", "previous"},
			Tool:     "get_historical_events",
		},
		{
			Category: "relationship",
			Keywords: []string{"relationship", "related", "correlation", "peers", "compare", "supplier", "competitor"},
			Tool:     "get_relationships",
		},
	}
}

// defaultStoplist filters common uppercase words out of entity extraction.
// Ticker symbols are short uppercase tokens; so are a lot of English words
// and finance abbreviations that never name a company.
var defaultStoplist = map[string]struct{}{
	"A": {}, "I": {}, "AN": {}, "AND": {}, "ARE": {}, "AT": {}, "BE": {},
	"BY": {}, "DO": {}, "FOR": {}, "HOW": {}, "IF": {}, "IN": {}, "IS": {},
	"IT": {}, "ME": {}, "MY": {}, "NO": {}, "OF": {}, "ON": {}, "OR": {},
	"SO": {}, "THE": {}, "TO": {}, "UP": {}, "US": {}, "VS": {}, "WHAT": {},
	"WHEN": {}, "WHO": {}, "WHY": {}, "WILL": {}, "YES": {},
	"AI": {}, "CEO": {}, "CFO": {}, "EPS": {}, "ETF": {}, "GDP": {},
	"IPO": {}, "PE": {}, "Q1": {}, "Q2": {}, "Q3": {}, "Q4": {}, "SEC": {},
	"USD": {}, "YOY": {},
}
