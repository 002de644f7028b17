package logger

import "log/slog"

type Backend string

const (
	BackendStd Backend = "std" // text handler on stdout
	BackendZap Backend = "zap" // JSON via zap with sampling
)

type Config struct {
	Service    string
	Version    string
	InstanceID string

	Level   slog.Level
	Env     Env
	Backend Backend // default: zap outside dev
	Debug   bool

	// zap sampling knobs
	SampleInitial    int
	SampleThereafter int

	AddSource bool
}
