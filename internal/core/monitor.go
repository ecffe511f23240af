package core

// Monitor receives lifecycle signals from the streaming use cases so
// the metrics provider can expose gauges and counters without the
// domain layer importing an instrumentation library.
type Monitor interface {
	WatchSessionOpened()
	WatchSessionClosed()
	WatchReconnect()
	LogStreamOpened()
	LogStreamClosed()
	ShellSessionOpened()
	ShellSessionClosed()
}

type nopMonitor struct{}

func (nopMonitor) WatchSessionOpened()  {}
func (nopMonitor) WatchSessionClosed()  {}
func (nopMonitor) WatchReconnect()      {}
func (nopMonitor) LogStreamOpened()     {}
func (nopMonitor) LogStreamClosed()     {}
func (nopMonitor) ShellSessionOpened()  {}
func (nopMonitor) ShellSessionClosed()  {}

// NewNopMonitor returns a Monitor that discards every signal.
func NewNopMonitor() Monitor { return nopMonitor{} }
