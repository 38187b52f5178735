package vocab

// Page is one batch of records returned by a single fetch.
type Page struct {
	// Records in remote order.
	Records []Record

	// CurrentPage is the 1-based page number.
	CurrentPage int

	// TotalPages is 0 when the remote does not report a page count.
	TotalPages int

	// HasNext is authoritative over any page-count arithmetic.
	HasNext bool
}

// Len returns the number of records on the page.
func (p *Page) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Records)
}
