package ingestion

// Filing is one candidate corporate filing discovered by a market adapter.
// Payload is adapter-specific and opaque to the engine; it carries whatever
// the adapter needs to fetch the full text later.
type Filing struct {
	Ticker          string
	AccessionNumber string
	FilingDate      string
	Form            string
	URL             string
	Payload         any
}

// Valid reports whether the filing carries the fields the engine requires.
func (f Filing) Valid() bool {
	return f.AccessionNumber != "" && f.Ticker != ""
}
