package permit

import "fmt"

// FormatSerial renders the human-readable permit serial for sequence
// number n, e.g. FormatSerial(7) == "PTW-0007". Serials are monotonic;
// gaps are tolerated, duplicates are not.
func FormatSerial(n int) string {
	return fmt.Sprintf("PTW-%04d", n)
}
