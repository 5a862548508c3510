//go:build !windows

package winctl

// NewBorderless returns a Toggler that always reports ErrUnsupported.
func NewBorderless(string) Toggler {
	return unsupported{}
}
