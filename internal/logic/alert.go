package logic

// Alert is the threshold state machine. It starts SILENT.
//
//	SILENT   -> ALARMING  when temperature >= threshold
//	ALARMING -> SILENT    when temperature <  threshold
//	ALARMING -> SILENT    forced, when the data source is lost
//
// Samples that are not being recorded never change the state.
type Alert struct {
	state AlertState
	last  *Sample
}

// NewAlert creates a SILENT alert machine.
func NewAlert() *Alert {
	return &Alert{state: AlertSilent}
}

// State returns the current alert state.
func (a *Alert) State() AlertState {
	if a.state == "" {
		return AlertSilent
	}
	return a.state
}

// LastEvaluated returns the last sample that was evaluated while recording.
func (a *Alert) LastEvaluated() (Sample, bool) {
	if a.last == nil {
		return Sample{}, false
	}
	return *a.last, true
}

// Evaluate processes one sample. The returned transition has From == To when
// nothing changed, including when recording is false.
func (a *Alert) Evaluate(s Sample, recording bool) Transition {
	from := a.State()
	if !recording {
		return Transition{From: from, To: from}
	}

	sample := s
	a.last = &sample

	to := from
	switch from {
	case AlertSilent:
		if s.Exceeds() {
			to = AlertAlarming
		}
	case AlertAlarming:
		if !s.Exceeds() {
			to = AlertSilent
		}
	}
	a.state = to

	return Transition{From: from, To: to, Sample: &sample}
}

// ForceSilent moves the machine to SILENT regardless of the last sample.
func (a *Alert) ForceSilent() Transition {
	from := a.State()
	a.state = AlertSilent
	return Transition{From: from, To: AlertSilent, Forced: from != AlertSilent}
}
