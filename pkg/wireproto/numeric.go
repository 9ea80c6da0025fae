package wireproto

import "strconv"

// parseUint parses the digit body of an Integer token. The wire format
// never carries a sign on an Integer field.
func parseUint(body string) (uint64, error) {
	return strconv.ParseUint(body, 10, 64)
}

// parseFloat parses the body of a Float token: an optional sign, digits,
// and an optional decimal point. No exponent form is accepted by the
// wire format, but strconv.ParseFloat accepting one is harmless since the
// grammar never feeds it one.
func parseFloat(body string) (float64, error) {
	return strconv.ParseFloat(body, 64)
}
