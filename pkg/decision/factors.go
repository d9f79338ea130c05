package decision

import "fmt"

func turnsSinceFactor(subject string, turns int, seen bool) Factor {
	f := Factor{Name: "turns_since_last"}
	switch {
	case !seen:
		f.Value = "never"
		f.Contribution = 0.25
		f.Reason = fmt.Sprintf("no %s so far this session", subject)
		return f
	case turns < 3:
		f.Contribution = -0.2
	case turns < 8:
		f.Contribution = 0.05
	case turns < 15:
		f.Contribution = 0.15
	default:
		f.Contribution = 0.25
	}
	f.Value = fmt.Sprintf("%d", turns)
	f.Reason = fmt.Sprintf("%d turns since the last %s", turns, subject)
	return f
}

func densityFactor(subject string, count int) Factor {
	f := Factor{Name: "local_density", Value: fmt.Sprintf("%d", count)}
	switch {
	case count <= 0:
		f.Contribution = 0.15
	case count <= 2:
		f.Contribution = 0.05
	case count <= 4:
		f.Contribution = -0.1
	default:
		f.Contribution = -0.25
	}
	f.Reason = fmt.Sprintf("%d %s already here", count, subject)
	return f
}

func momentumFactor(m Momentum) Factor {
	return Factor{
		Name:         "narrative_momentum",
		Value:        string(m),
		Contribution: momentumContribution[m],
		Reason:       fmt.Sprintf("story momentum is %s", m),
	}
}

func sceneFactor(appropriate bool, why string) Factor {
	f := Factor{Name: "scene_appropriate", Value: "0", Contribution: -0.3, Reason: why}
	if appropriate {
		f.Value = "1"
		f.Contribution = 0.1
	}
	return f
}

func minutesSinceFactor(subject string, minutes float64, seen bool) Factor {
	f := Factor{Name: "minutes_since_last"}
	if !seen {
		f.Value = "never"
		f.Contribution = 0.1
		f.Reason = fmt.Sprintf("no %s recorded yet", subject)
		return f
	}
	f.Value = fmt.Sprintf("%.0f", minutes)
	switch {
	case minutes < 5:
		f.Contribution = -0.1
	case minutes >= 30:
		f.Contribution = 0.1
	}
	f.Reason = fmt.Sprintf("%.0f minutes since the last %s", minutes, subject)
	return f
}

func frequencyFactor(subject string, count, window int) Factor {
	freq := FrequencyFor(count)
	return Factor{
		Name:         "recent_frequency",
		Value:        string(freq),
		Contribution: frequencyContribution[freq],
		Reason:       fmt.Sprintf("%d %s in the last %d turns (%s)", count, subject, window, freq),
	}
}

// withReason appends the signed contribution to a factor's reason.
func withReason(f Factor) Factor {
	f.Reason = fmt.Sprintf("%s (%+.2f)", f.Reason, f.Contribution)
	return f
}
