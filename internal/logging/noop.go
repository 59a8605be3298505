package logging

// NewNop returns a Logger that discards everything, for use in unit tests
// that don't assert on log output.
func NewNop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
func (nopLogger) Warnw(string, ...any)  {}
func (nopLogger) Errorw(string, ...any) {}
func (nopLogger) Infow(string, ...any)  {}
func (nopLogger) With(...any) Logger    { return nopLogger{} }
func (nopLogger) Sync() error           { return nil }
