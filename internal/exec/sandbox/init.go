package sandbox

import "codesync/internal/exec"

// Register sandbox provider on package import
func init() {
	exec.RegisterProvider(providerName, func(s exec.Settings) (exec.Provider, error) {
		return NewClient(s), nil
	})
}
