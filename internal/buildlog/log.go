// Package buildlog is the engine's structured logger, wired onto
// github.com/phuslu/log the way ternarybob-quaero wires the same library
// across its services. It replaces the teacher's bare fmt.Fprintf banners
// with leveled, field-tagged entries while keeping the teacher's instinct
// to log a short line per job rather than a paragraph.
package buildlog

import (
	"os"
	"time"

	"github.com/phuslu/log"
)

// Logger wraps a phuslu/log.Logger configured for the engine's stderr
// output. The zero value is not usable; call New.
type Logger struct {
	l log.Logger
}

// New builds a Logger writing to stderr. verbose lowers the level to Debug;
// otherwise Info and above are printed.
func New(verbose bool) *Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return &Logger{
		l: log.Logger{
			Level:      level,
			TimeFormat: time.Kitchen,
			Writer: &log.ConsoleWriter{
				Writer: os.Stderr,
			},
		},
	}
}

// Job returns an entry pre-tagged with a job's identity, for chained fields.
func (b *Logger) Job(seq int, rule, output string) *log.Entry {
	return b.l.Info().Int("job_id", seq).Str("rule", rule).Str("output", output)
}

func (b *Logger) Debugf(format string, args ...any) { b.l.Debug().Msgf(format, args...) }
func (b *Logger) Infof(format string, args ...any)  { b.l.Info().Msgf(format, args...) }
func (b *Logger) Warnf(format string, args ...any)  { b.l.Warn().Msgf(format, args...) }
func (b *Logger) Errorf(format string, args ...any) { b.l.Error().Msgf(format, args...) }

// Complete logs a job's completion with its elapsed run time, the
// original_source-supplemented per-job benchmarking hook promised by
// SPEC_FULL.md: one Job-tagged entry with the elapsed duration attached.
func (b *Logger) Complete(seq int, rule, output string, elapsed time.Duration) {
	b.Job(seq, rule, output).Dur("elapsed", elapsed).Msg("job complete")
}

// Failed logs a job's failure through the same Job-tagged entry shape as
// Complete, carrying the error and elapsed run time instead of a success.
func (b *Logger) Failed(seq int, rule, output string, elapsed time.Duration, err error) {
	b.Job(seq, rule, output).Dur("elapsed", elapsed).Err(err).Msg("job failed")
}

// Reason prints the --reason line for a job that needs to run.
func (b *Logger) Reason(seq int, rule, reason string) {
	b.l.Info().Int("job_id", seq).Str("rule", rule).Str("reason", reason).Msg("needs run")
}

// Message prints a job's rendered message template (plain, undecorated,
// matching the teacher's "mk: building %q" banners).
func (b *Logger) Message(text string) {
	b.l.Info().Msg(text)
}
