// Package pagination provides the search session that pages through
// restaurant search results.
//
// The search API returns at most PageSize records per request together with
// the total number available. A Session issues the requests one at a time and
// accumulates the records in page order, so a list view can render what is
// loaded and ask for more when the user scrolls.
//
// Example usage:
//
//	api, _ := client.New(client.DefaultConfig(apiKey))
//	session := pagination.NewSession(api)
//	err := session.Search(ctx, model.SearchCriteria{
//		Latitude:  34.70,
//		Longitude: 135.50,
//		Radius:    model.Radius500m,
//	})
//	for session.CanLoadMore() {
//		if err := session.LoadMore(ctx); err != nil {
//			break
//		}
//	}
//
// The session:
//   - Resets records and the page counter on every Search
//   - Ignores LoadMore while a fetch is in flight or once everything is loaded
//   - Appends pages in order without deduplication
//   - Drops the result of a fetch superseded by a newer Search
//   - Keeps records untouched when a fetch fails and exposes the error
package pagination
