package judge0

import "codesync/internal/exec"

// Register judge0 provider on package import
func init() {
	exec.RegisterProvider(providerName, func(s exec.Settings) (exec.Provider, error) {
		c, err := NewClient(s)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}
