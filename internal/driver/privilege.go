package driver

// PrivilegeMode describes how an appliance handles privilege escalation.
type PrivilegeMode int

const (
	// PrivilegeNone means the appliance has no enable mode.
	PrivilegeNone PrivilegeMode = iota
	// PrivilegeEnable means an enable command raises the session privilege.
	PrivilegeEnable
)

func (m PrivilegeMode) String() string {
	switch m {
	case PrivilegeNone:
		return "none"
	case PrivilegeEnable:
		return "enable"
	}
	return "unknown"
}

// PrivilegeCapabilities is the privilege-escalation part of the driver
// surface. Arguments are accepted for signature compatibility and ignored by
// appliances without an enable mode.
type PrivilegeCapabilities interface {
	PrivilegeMode() PrivilegeMode
	CheckEnableMode(args ...string) bool
	Enable(args ...string) error
	ExitEnableMode(args ...string) error
}

// NoPrivilegeMode is the privilege surface of appliances without an enable
// mode. Every method performs no I/O and cannot fail.
type NoPrivilegeMode struct{}

var _ PrivilegeCapabilities = NoPrivilegeMode{}

// PrivilegeMode reports PrivilegeNone.
func (NoPrivilegeMode) PrivilegeMode() PrivilegeMode { return PrivilegeNone }

// CheckEnableMode reports false: there is no elevated mode to be in.
func (NoPrivilegeMode) CheckEnableMode(...string) bool { return false }

// Enable does nothing.
func (NoPrivilegeMode) Enable(...string) error { return nil }

// ExitEnableMode does nothing.
func (NoPrivilegeMode) ExitEnableMode(...string) error { return nil }
