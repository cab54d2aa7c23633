// Package linkedin discovers and parses job postings on the public
// LinkedIn jobs pages.
package linkedin

import (
	"fmt"
	"net/url"
)

const (
	BaseURL = "https://www.linkedin.com"

	// MaxPages is how far the search results paginate before the site stops
	// rendering new results (1000 results, 25 per page).
	MaxPages = 40

	resultsPerPage = 25
)

// Markup locations on a posting page. These follow the current site
// markup and are expected to drift.
const (
	selTitle        = "h1"
	selCompanyImage = "img.artdeco-entity-image"
	selPostedTime   = ".posted-time-ago__text"
	selCriteria     = ".description__job-criteria-item .description__job-criteria-text"
	selDescription  = ".show-more-less-html__markup"
	selListingLink  = "a[href]"
)

// ListingURL returns the search results url for a zero-based page index.
func ListingURL(query, location string, page int) string {
	q := url.Values{}
	q.Set("keywords", query)
	q.Set("location", location)
	q.Set("start", fmt.Sprint(page*resultsPerPage))
	return BaseURL + "/jobs/search/?" + q.Encode()
}
