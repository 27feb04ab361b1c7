package logger

import "io"

// Option for init logger option
type (
	Option struct {
		MultiWriter []io.Writer
		Level       string
		Service     string
	}

	// OptionFunc func
	OptionFunc func(*Option)
)

// OptionSetWriter option func, override all log writer
func OptionSetWriter(w ...io.Writer) OptionFunc {
	return func(o *Option) {
		o.MultiWriter = w
	}
}

// OptionSetLevel sets the minimum level ("debug", "info", "warn", "error").
func OptionSetLevel(level string) OptionFunc {
	return func(o *Option) {
		o.Level = level
	}
}

// OptionSetService tags every entry with the service name.
func OptionSetService(name string) OptionFunc {
	return func(o *Option) {
		o.Service = name
	}
}
