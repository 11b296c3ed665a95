package config

// ConfigDiff describes what changed between two configs.
// Hot-reloadable changes are itemised; anything else is listed in
// RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VoiceChanged bool
	Voice        VoiceConfig

	ActivationsChanged bool
	ActivationChanges  []ActivationDiff // in new-config order, removals last

	// ActivationsReordered is set when activations present in both configs
	// appear in a different order.
	ActivationsReordered bool

	// RestartRequired names the sections whose changes only take effect
	// after a restart.
	RestartRequired []string
}

// ActivationDiff describes what changed for a single activation between two
// configs. Activations are matched by ID.
type ActivationDiff struct {
	ID   string
	Name string

	DisabledChanged  bool
	ThresholdChanged bool
	DistanceChanged  bool

	// Rebuild is set when a field that cannot be changed in place (type,
	// mode, stereo, transitivity, release frames, parent) changed.
	Rebuild bool

	Added   bool
	Removed bool
}

// Changed reports whether the diff carries any change.
func (d ActivationDiff) Changed() bool {
	return d.DisabledChanged || d.ThresholdChanged || d.DistanceChanged || d.Rebuild || d.Added || d.Removed
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Voice != new.Voice {
		d.VoiceChanged = true
		d.Voice = new.Voice
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Transport != new.Transport {
		d.RestartRequired = append(d.RestartRequired, "transport")
	}
	if !sameDevices(old.Device, new.Device) {
		d.RestartRequired = append(d.RestartRequired, "device")
	}

	oldActs := make(map[string]*ActivationConfig, len(old.Activations))
	for i := range old.Activations {
		oldActs[old.Activations[i].ID] = &old.Activations[i]
	}
	newIDs := make(map[string]bool, len(new.Activations))

	for i := range new.Activations {
		na := &new.Activations[i]
		newIDs[na.ID] = true
		oa, exists := oldActs[na.ID]
		if !exists {
			d.ActivationChanges = append(d.ActivationChanges, ActivationDiff{ID: na.ID, Name: na.Name, Added: true})
			continue
		}
		if ad := diffActivation(oa, na); ad.Changed() {
			d.ActivationChanges = append(d.ActivationChanges, ad)
		}
	}
	for i := range old.Activations {
		oa := &old.Activations[i]
		if !newIDs[oa.ID] {
			d.ActivationChanges = append(d.ActivationChanges, ActivationDiff{ID: oa.ID, Name: oa.Name, Removed: true})
		}
	}
	d.ActivationsReordered = reordered(old.Activations, new.Activations)
	d.ActivationsChanged = len(d.ActivationChanges) > 0 || d.ActivationsReordered

	return d
}

// diffActivation compares two activation configs with the same ID.
func diffActivation(old, new *ActivationConfig) ActivationDiff {
	ad := ActivationDiff{ID: new.ID, Name: new.Name}

	ad.DisabledChanged = old.Disabled != new.Disabled
	ad.ThresholdChanged = old.ThresholdDB != new.ThresholdDB
	ad.DistanceChanged = old.Distance != new.Distance

	ad.Rebuild = old.Type != new.Type ||
		old.Mode != new.Mode ||
		old.Stereo != new.Stereo ||
		old.Transitive != new.Transitive ||
		old.ReleaseFrames != new.ReleaseFrames ||
		old.Parent != new.Parent ||
		old.Name != new.Name

	return ad
}

// reordered reports whether the ids common to a and b occur in a different
// relative order.
func reordered(a, b []ActivationConfig) bool {
	inB := make(map[string]bool, len(b))
	for _, x := range b {
		inB[x.ID] = true
	}
	inA := make(map[string]bool, len(a))
	var common []string
	for _, x := range a {
		inA[x.ID] = true
		if inB[x.ID] {
			common = append(common, x.ID)
		}
	}
	i := 0
	for _, x := range b {
		if !inA[x.ID] {
			continue
		}
		if common[i] != x.ID {
			return true
		}
		i++
	}
	return false
}

func sameDevices(a, b DeviceConfig) bool {
	if a.DeviceSource != b.DeviceSource || len(a.Fallbacks) != len(b.Fallbacks) {
		return false
	}
	for i := range a.Fallbacks {
		if a.Fallbacks[i] != b.Fallbacks[i] {
			return false
		}
	}
	return true
}
