package utils

import "html"

// EncodeHTML escapes the markup-significant characters & < > " ' so the text
// can be stored and rendered verbatim.
func EncodeHTML(input string) string {
	return html.EscapeString(input)
}

// DecodeHTML reverses EncodeHTML, used when an encoded value is put back into an edit form.
func DecodeHTML(input string) string {
	return html.UnescapeString(input)
}
