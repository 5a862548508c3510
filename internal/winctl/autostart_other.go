//go:build !windows && !linux

package winctl

// NewAutoStart returns a Toggler that always reports ErrUnsupported.
func NewAutoStart(string) Toggler {
	return unsupported{}
}
