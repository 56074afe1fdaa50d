package fetch

// CheckRedirect reports ErrRedirect when the page was not served from the
// URL that was requested. The catalog site answers unknown book IDs and
// out-of-range category pages with a redirect to its home page rather
// than a 404, so a redirect means "does not exist".
func CheckRedirect(p *Page) error {
	if len(p.Redirects) > 0 || p.FinalURL != p.URL {
		return ErrRedirect{From: p.URL, To: p.FinalURL}
	}
	return nil
}
