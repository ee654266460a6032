// Package log provides the package-level structured logger shared by the
// evaluator, the transaction driver, and the fixed-rule dispatcher, using a
// single shared logrus instance rather than one per package.
package log

import "github.com/sirupsen/logrus"

// Log is the shared logger. Callers scope it with WithField/WithFields
// rather than creating their own instances, so log level and output can be
// configured once for the whole engine.
var Log = logrus.StandardLogger()

func init() {
	Log.SetLevel(logrus.InfoLevel)
}

// Component returns a logger entry scoped to a named subsystem, e.g.
// log.Component("eval") or log.Component("txn").
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
