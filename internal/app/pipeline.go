package app

import (
	"github.com/ayusman/nofacetouch/internal/classifier"
	"github.com/ayusman/nofacetouch/internal/detection"
)

// newLoop builds the detection loop over the trained classifier.
//
// Sinks run in this order on every cycle:
// 1. Alert sound on a rising edge
// 2. Touch history (opens on rising, closes on falling)
// 3. Status label for the tray, API and console
func (a *App) newLoop(clf *classifier.Classifier) *detection.Loop {
	d := a.settings.Detection

	cfg := detection.DefaultConfig()
	cfg.Threshold = d.Threshold
	cfg.MinInterval = d.MinInterval
	cfg.Clock = a.clock
	cfg.Logger = a.log
	cfg.Sinks = []detection.Sink{
		detection.NewAlertSink(a.player),
		a.history,
		detection.NewStatusSink(a.hub),
	}

	a.log.WithField("examples", clf.Len()).Info("Training confirmed, starting detection")
	return detection.NewLoop(clf, a.camera, a.extractor, cfg)
}
