// internal/logging/logging.go
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(strings.ToLower(os.Getenv("FUSION_LOG_LEVEL"))); err == nil {
		l.SetLevel(lvl)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

// For returns a logger tagged with the given component, mirroring the
// "[component] message" bracket convention used throughout this codebase's
// ancestry, but as a structured field instead of a string prefix.
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}

// ForOrg returns a logger tagged with both component and organizationId,
// used by per-organization execution contexts (C5) and the tenant gateway.
func ForOrg(component, organizationID string) *logrus.Entry {
	return base.WithFields(logrus.Fields{
		"component":      component,
		"organizationId": organizationID,
	})
}
