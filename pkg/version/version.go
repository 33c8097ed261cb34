package version

// Version represents the current version of slotweave
const Version = "0.4.0"

// BuildVersion returns the version string for display
func BuildVersion() string {
	return "slotweave version " + Version
}

// ServerHeader returns the value of the Server response header
func ServerHeader() string {
	return "slotweave/" + Version
}
