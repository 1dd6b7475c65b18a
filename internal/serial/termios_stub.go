//go:build !linux

package serial

func openTermios(opts Options) (Port, error) {
	return nil, ErrUnsupported
}
