// Package pagination walks a paginated remote collection page by page.
//
// The total number of pages is not known in advance and each page's cursor is
// only known once its predecessor has been fetched, so pages are requested
// strictly in sequence: page 1 first, then one page at a time for as long as
// the previous page reports more data and the optional page limit allows.
//
// Example usage:
//
//	walker := pagination.NewWalker(duocardsClient, pagination.Config{PageLimit: 5})
//	result, err := walker.Walk(ctx, pagination.Visitor{
//		Page: func(ctx context.Context, page *vocab.Page) error {
//			return process(page.Records)
//		},
//	})
//
// The walker:
//   - Never issues more than PageLimit fetch calls
//   - Stops after the first page whose HasNext is false
//   - Returns the first fetch or visitor error unchanged
package pagination
